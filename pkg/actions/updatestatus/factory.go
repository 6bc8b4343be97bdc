package updatestatus

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

type ActionFactory struct{}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionUpdateStatus
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Update Status Configuration",
		"properties": map[string]any{
			"field": map[string]any{
				"type":    "string",
				"default": DefaultField,
			},
			"value": map[string]any{
				"type":        []string{"string", "number", "boolean"},
				"description": "Value written to the field",
			},
		},
		"required": []string{"value"},
	}
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}
