package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
)

// StepContext carries everything an action needs to run one step of a run.
type StepContext struct {
	RunID        string
	DefinitionID string
	Step         models.ActionStep
	EntityID     string
	EntityType   string
	EventPayload map[string]any
	Entities     EntityStore
	Notifier     NotificationSender
	Logger       *slog.Logger
}

// Action executes one step. The returned map is recorded as the step output.
type Action interface {
	Execute(ctx context.Context, step StepContext) (map[string]any, error)
}

// ActionFactory builds actions of one type and describes their configuration.
type ActionFactory interface {
	ID() models.ActionType
	Create(config map[string]any) (Action, error)
	Schema() map[string]any
}

// ErrInvalidStepInput marks a step that cannot succeed no matter how often it is retried,
// such as a missing recipient or a malformed configuration value.
var ErrInvalidStepInput = errors.New("invalid step input")
