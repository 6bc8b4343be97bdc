// Package notify provides protocol.NotificationSender implementations.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/jonboulle/clockwork"
)

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "notify")}
}

func (s *LogSender) Send(ctx context.Context, notification protocol.Notification) error {
	s.logger.InfoContext(ctx, "Notification",
		"channel", notification.Channel,
		"to", notification.To,
		"subject", notification.Subject,
		"body", notification.Body,
	)

	return nil
}

// OutboxSender publishes notifications on the notification topic for an external mailer.
type OutboxSender struct {
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
}

func NewOutboxSender(publisher eventbus.EventPublisher, clock clockwork.Clock) *OutboxSender {
	return &OutboxSender{publisher: publisher, clock: clock}
}

func (s *OutboxSender) Send(ctx context.Context, notification protocol.Notification) error {
	event := events.NewNotificationEvent(notification, runIDFromContext(ctx), s.clock.Now())

	if err := s.publisher.Publish(ctx, notification.To, event); err != nil {
		return fmt.Errorf("%w: publish notification: %w", protocol.ErrUnavailable, err)
	}

	return nil
}

type runIDKey struct{}

// WithRunID tags ctx so outbound notifications carry the run that produced them.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)

	return runID
}
