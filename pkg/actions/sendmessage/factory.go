package sendmessage

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

// ActionFactory builds send actions bound to one delivery channel.
type ActionFactory struct {
	actionType models.ActionType
	channel    protocol.Channel
}

// NewMessageFactory builds send_message actions delivered in-app.
func NewMessageFactory() *ActionFactory {
	return &ActionFactory{actionType: models.ActionSendMessage, channel: protocol.ChannelInApp}
}

// NewEmailFactory builds send_email actions delivered by email.
func NewEmailFactory() *ActionFactory {
	return &ActionFactory{actionType: models.ActionSendEmail, channel: protocol.ChannelEmail}
}

func (f *ActionFactory) ID() models.ActionType {
	return f.actionType
}

func (f *ActionFactory) Channel() protocol.Channel {
	return f.channel
}

func (f *ActionFactory) Schema() map[string]any {
	required := []string{"body"}
	if f.channel == protocol.ChannelEmail {
		required = []string{"subject", "body"}
	}

	return map[string]any{
		"type":  "object",
		"title": "Send Message Configuration",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient. Defaults to the entity email for email and the entity id for in-app",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line, supports {{field}} placeholders",
			},
			"body": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message body, supports {{field}} placeholders",
			},
		},
		"required": required,
	}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.channel, config)
}
