package statuschanged

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

func NewTriggerFactory() *TriggerFactory {
	return &TriggerFactory{}
}

type TriggerFactory struct{}

func (f *TriggerFactory) ID() models.TriggerType {
	return models.TriggerStatusChanged
}

func (f *TriggerFactory) Name() string {
	return "Status changed"
}

func (f *TriggerFactory) Description() string {
	return "Fires when an entity status moves between the configured values"
}

func (f *TriggerFactory) Schema() map[string]any {
	optionalString := func(description string, examples ...string) map[string]any {
		return map[string]any{
			"type":        []string{"string", "null"},
			"description": description,
			"examples":    examples,
		}
	}

	return map[string]any{
		"type":        "object",
		"title":       "Status Changed Trigger Configuration",
		"description": "Unset (or \"*\"/\"any\") values match every status",
		"properties": map[string]any{
			"field": optionalString("Name of the changed field", "status", "application_status"),
			"from":  optionalString("Previous status", "applied", "*"),
			"to":    optionalString("New status", "enrolled", "rejected"),
		},
	}
}

func (f *TriggerFactory) Create(config map[string]any) (protocol.TriggerCondition, error) {
	return NewCondition(config), nil
}
