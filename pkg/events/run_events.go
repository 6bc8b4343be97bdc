package events

import (
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/google/uuid"
)

// RunEvent is a lifecycle notification about a workflow run, published for the host's monitoring.
type RunEvent struct {
	BaseEvent

	RunID            string           `json:"run_id"`
	DefinitionID     string           `json:"definition_id"`
	TargetEntityID   string           `json:"target_entity_id"`
	TargetEntityType string           `json:"target_entity_type"`
	Status           models.RunStatus `json:"status"`
	StepIndex        *int             `json:"step_index,omitempty"`
	NextWakeAt       *time.Time       `json:"next_wake_at,omitempty"`
	Error            string           `json:"error,omitempty"`
}

func (e RunEvent) GetType() EventType {
	return e.Type
}

// NewRunEvent builds a lifecycle event from the current state of a run.
func NewRunEvent(eventType EventType, run *models.WorkflowRun, at time.Time) RunEvent {
	return RunEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: at,
		},
		RunID:            run.ID,
		DefinitionID:     run.WorkflowDefinitionID,
		TargetEntityID:   run.TargetEntityID,
		TargetEntityType: run.TargetEntityType,
		Status:           run.Status,
		NextWakeAt:       run.NextWakeAt,
	}
}

// WithStep attaches a step index and optional error detail.
func (e RunEvent) WithStep(index int, errMsg string) RunEvent {
	e.StepIndex = &index
	e.Error = errMsg

	return e
}
