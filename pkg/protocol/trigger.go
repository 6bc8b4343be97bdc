package protocol

import "github.com/dukex/cadence/pkg/models"

// TriggerPayload is the part of a domain event a trigger condition looks at.
type TriggerPayload map[string]any

// TriggerCondition decides whether an event payload satisfies a trigger configuration.
type TriggerCondition interface {
	Matches(payload TriggerPayload) bool
}

// TriggerFactory builds conditions for one trigger type.
type TriggerFactory interface {
	ID() models.TriggerType
	Create(config map[string]any) (TriggerCondition, error)
	Schema() map[string]any
}
