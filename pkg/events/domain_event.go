package events

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidEventData is returned when a domain event cannot be parsed or is invalid.
var ErrInvalidEventData = errors.New("invalid event data")

// Well-known payload keys.
const (
	PayloadOldValue  = "old_value"
	PayloadNewValue  = "new_value"
	PayloadOldStatus = "old_status"
	PayloadNewStatus = "new_status"
	PayloadField     = "field"
)

// DomainEvent is a change notification emitted by the host application.
// EventID must be stable across redelivery, it is part of the run dedup key.
type DomainEvent struct {
	EventID    string         `json:"event_id"    validate:"required"`
	Type       string         `json:"type"        validate:"required"`
	EntityID   string         `json:"entity_id"   validate:"required"`
	EntityType string         `json:"entity_type" validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at,omitempty"`
}

func (DomainEvent) GetType() EventType {
	return DomainEventReceived
}

// NewDomainEvent creates a DomainEvent with a non-nil payload.
func NewDomainEvent(eventID, eventType, entityID, entityType string, payload map[string]any) *DomainEvent {
	if payload == nil {
		payload = make(map[string]any)
	}

	return &DomainEvent{
		EventID:    eventID,
		Type:       eventType,
		EntityID:   entityID,
		EntityType: entityType,
		Payload:    payload,
	}
}

// Validate performs basic validation on the event structure.
func (e *DomainEvent) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: event is nil", ErrInvalidEventData)
	case e.EventID == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalidEventData)
	case e.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidEventData)
	case e.EntityID == "":
		return fmt.Errorf("%w: entity_id is required", ErrInvalidEventData)
	case e.EntityType == "":
		return fmt.Errorf("%w: entity_type is required", ErrInvalidEventData)
	}

	return nil
}

// PayloadString extracts a string value from the payload.
// Returns the value and true if the key exists and is a string.
func (e *DomainEvent) PayloadString(key string) (string, bool) {
	value, exists := e.Payload[key]
	if !exists || value == nil {
		return "", false
	}

	strValue, ok := value.(string)

	return strValue, ok
}

// PayloadNumber extracts a numeric value from the payload. JSON numbers,
// Go integer kinds and numeric strings are accepted.
func (e *DomainEvent) PayloadNumber(key string) (float64, bool) {
	value, exists := e.Payload[key]
	if !exists {
		return 0, false
	}

	return AsNumber(value)
}

// AsNumber converts a JSON-like scalar into a float64.
func AsNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
