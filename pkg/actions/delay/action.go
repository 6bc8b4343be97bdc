// Package delay implements the delay action. The wait itself is carried by the step's
// delay_before_days; executing the action does nothing.
package delay

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

type ActionFactory struct{}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionDelay
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Delay Configuration",
		"description": "Pure wait. Set delay_before_days on the step; the action has no configuration.",
	}
}

func (*ActionFactory) Create(map[string]any) (protocol.Action, error) {
	return &Action{}, nil
}

type Action struct{}

func (*Action) Execute(_ context.Context, step protocol.StepContext) (map[string]any, error) {
	step.Logger.Debug("Delay elapsed", "action_type", "delay", "step_index", step.Step.Index)

	return nil, nil
}
