package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/cadence/pkg/channels/gochannel"
	"github.com/dukex/cadence/pkg/channels/kafka"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/notify"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/jonboulle/clockwork"
)

// NewEventBus creates the watermill event bus for the provider. Kafka consumers
// join the consumer group named after serviceName.
func NewEventBus(provider string, brokers string, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("%w: event bus %q", ErrUnsupportedProvider, provider)
	}
}

// NewNotificationSender builds the notification sender. "outbox" publishes
// notification requests on the bus for a delivery service to pick up.
func NewNotificationSender(
	kind string,
	bus eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) (protocol.NotificationSender, error) {
	switch kind {
	case "", "log":
		return notify.NewLogSender(logger), nil
	case "outbox":
		return notify.NewOutboxSender(bus, clock), nil
	default:
		return nil, fmt.Errorf("%w: notification sender %q", ErrUnsupportedProvider, kind)
	}
}
