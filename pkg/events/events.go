// Package events defines the inbound domain events and the run lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topics.
const (
	DomainEventTopic = "cadence.domain.events" // Inbound domain events from the host
	RunEventTopic    = "cadence.run.events"    // Outbound run lifecycle notifications
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DomainEventReceived EventType = "domain.event"

	RunScheduledEvent     EventType = "run.scheduled"
	RunWaitingEvent       EventType = "run.waiting"
	RunStepSucceededEvent EventType = "run.step.succeeded"
	RunStepFailedEvent    EventType = "run.step.failed"
	RunCompletedEvent     EventType = "run.completed"
	RunFailedEvent        EventType = "run.failed"
	RunCancelledEvent     EventType = "run.cancelled"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  string    `json:"worker_id,omitempty"`
}

// NotificationTopic carries notifications for delivery by an external mailer.
const NotificationTopic = "cadence.notifications"

const NotificationRequestedEvent EventType = "notification.requested"

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case DomainEventReceived:
		return DomainEventTopic
	case NotificationRequestedEvent:
		return NotificationTopic
	default:
		return RunEventTopic
	}
}
