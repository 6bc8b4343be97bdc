package createtask

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

type ActionFactory struct{}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionCreateTask
}

func (*ActionFactory) Name() string {
	return "Create task"
}

func (*ActionFactory) Description() string {
	return "Creates a task record linked to the target entity"
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Create Task Configuration",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Task title, supports {{field}} placeholders",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Task description, supports {{field}} placeholders",
			},
			"priority": map[string]any{
				"type":    "string",
				"enum":    []string{"low", "normal", "high", "urgent"},
				"default": "normal",
			},
			"entity_type": map[string]any{
				"type":        "string",
				"description": "Entity type used for the created record",
				"default":     DefaultEntityType,
			},
		},
		"required": []string{"title"},
	}
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}
