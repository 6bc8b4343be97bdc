// Package sendmessage implements send_message and send_email. Both render subject and body
// against the target entity and hand the result to the notification sender.
package sendmessage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/template"
)

const emailField = "email"

var (
	ErrBodyRequired    = errors.New("send_message: body is required")
	ErrSubjectRequired = errors.New("send_email: subject is required")
)

type Action struct {
	Channel protocol.Channel
	To      string
	Subject string
	Body    string
}

func NewAction(channel protocol.Channel, config map[string]any) (*Action, error) {
	body, _ := config["body"].(string)
	if body == "" {
		return nil, ErrBodyRequired
	}

	subject, _ := config["subject"].(string)
	if subject == "" && channel == protocol.ChannelEmail {
		return nil, ErrSubjectRequired
	}

	to, _ := config["to"].(string)

	return &Action{
		Channel: channel,
		To:      to,
		Subject: subject,
		Body:    body,
	}, nil
}

func (a *Action) Execute(ctx context.Context, step protocol.StepContext) (map[string]any, error) {
	logger := step.Logger.With("action_type", "send_message", "channel", a.Channel)

	entity, err := step.Entities.Get(ctx, step.EntityID)
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", step.EntityID, err)
	}

	data := template.Data{
		EntityID:   entity.ID,
		EntityType: entity.Type,
		Fields:     entity.Fields,
		Event:      step.EventPayload,
	}

	to := template.Render(a.To, data)
	if to == "" {
		to = a.defaultRecipient(entity)
	}

	if to == "" {
		return nil, fmt.Errorf("%w: no recipient for entity %s", protocol.ErrInvalidStepInput, entity.ID)
	}

	notification := protocol.Notification{
		Channel: a.Channel,
		To:      to,
		Subject: template.Render(a.Subject, data),
		Body:    template.Render(a.Body, data),
	}

	if err := step.Notifier.Send(ctx, notification); err != nil {
		return nil, fmt.Errorf("send %s notification: %w", a.Channel, err)
	}

	logger.Info("Notification sent", "to", to)

	return map[string]any{
		"channel": string(notification.Channel),
		"to":      notification.To,
		"subject": notification.Subject,
	}, nil
}

func (a *Action) defaultRecipient(entity *protocol.Entity) string {
	if a.Channel == protocol.ChannelInApp {
		return entity.ID
	}

	email, _ := entity.Fields[emailField].(string)

	return email
}
