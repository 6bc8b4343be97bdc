package events

import (
	"time"

	"github.com/dukex/cadence/pkg/protocol"
	"github.com/google/uuid"
)

// NotificationEvent asks an external mailer to deliver a notification.
type NotificationEvent struct {
	BaseEvent

	RunID        string                `json:"run_id,omitempty"`
	Notification protocol.Notification `json:"notification"`
}

func (e NotificationEvent) GetType() EventType {
	return e.Type
}

func NewNotificationEvent(notification protocol.Notification, runID string, at time.Time) NotificationEvent {
	return NotificationEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      NotificationRequestedEvent,
			Timestamp: at,
		},
		RunID:        runID,
		Notification: notification,
	}
}
