// Package updatestatus implements the update_status action.
package updatestatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/protocol"
)

const DefaultField = "status"

var ErrValueRequired = errors.New("update_status: value is required")

type Action struct {
	Field string
	Value any
}

func NewAction(config map[string]any) (*Action, error) {
	value, ok := config["value"]
	if !ok || value == nil {
		return nil, ErrValueRequired
	}

	field, _ := config["field"].(string)
	if field == "" {
		field = DefaultField
	}

	return &Action{Field: field, Value: value}, nil
}

func (a *Action) Execute(ctx context.Context, step protocol.StepContext) (map[string]any, error) {
	logger := step.Logger.With("action_type", "update_status")

	entity, err := step.Entities.Update(ctx, step.EntityID, map[string]any{a.Field: a.Value})
	if err != nil {
		return nil, fmt.Errorf("update %s on entity %s: %w", a.Field, step.EntityID, err)
	}

	logger.Info("Entity updated", "entity_id", entity.ID, "field", a.Field)

	return map[string]any{
		"field": a.Field,
		"value": a.Value,
	}, nil
}
