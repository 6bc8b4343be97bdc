package models

import (
	"time"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status can never change again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StepStatus is the outcome of a single executed step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// StepResult records one executed step of a run.
type StepResult struct {
	Index      int            `json:"index"`
	ActionType ActionType     `json:"action_type"`
	Status     StepStatus     `json:"status"`
	ExecutedAt time.Time      `json:"executed_at"`
	Attempts   int            `json:"attempts"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// WorkflowRun is one execution of a definition against one entity for one triggering event.
type WorkflowRun struct {
	ID                   string             `json:"id"`
	WorkflowDefinitionID string             `json:"workflow_definition_id"`
	DefinitionSnapshot   DefinitionSnapshot `json:"definition_snapshot"`
	TargetEntityID       string             `json:"target_entity_id"`
	TargetEntityType     string             `json:"target_entity_type"`
	TriggeringEventID    string             `json:"triggering_event_id"`
	EventPayload         map[string]any     `json:"event_payload,omitempty"`
	Status               RunStatus          `json:"status"`
	CurrentStepIndex     int                `json:"current_step_index"`
	NextWakeAt           *time.Time         `json:"next_wake_at,omitempty"`
	StepResults          []StepResult       `json:"step_results"`
	CancelRequested      bool               `json:"cancel_requested"`
	ClaimedBy            string             `json:"claimed_by,omitempty"`
	ClaimedAt            *time.Time         `json:"claimed_at,omitempty"`
	Version              int64              `json:"version"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
}

// DedupKey returns the natural key guarding against duplicate runs.
func (r *WorkflowRun) DedupKey() DedupKey {
	return DedupKey{
		DefinitionID: r.WorkflowDefinitionID,
		EntityID:     r.TargetEntityID,
		EventID:      r.TriggeringEventID,
	}
}

// CurrentStep returns the step at CurrentStepIndex, if any.
func (r *WorkflowRun) CurrentStep() (ActionStep, bool) {
	if r.CurrentStepIndex < 0 || r.CurrentStepIndex >= len(r.DefinitionSnapshot.Actions) {
		return ActionStep{}, false
	}

	return r.DefinitionSnapshot.Actions[r.CurrentStepIndex], true
}

// StepResult returns the recorded result for a step index.
func (r *WorkflowRun) StepResult(index int) (StepResult, bool) {
	for _, result := range r.StepResults {
		if result.Index == index {
			return result, true
		}
	}

	return StepResult{}, false
}

// IsDue reports whether a waiting run may be resumed at now.
func (r *WorkflowRun) IsDue(now time.Time) bool {
	return r.Status == RunStatusWaiting && r.NextWakeAt != nil && !r.NextWakeAt.After(now)
}

// Clone returns a deep copy so stores can hand out values that callers may mutate.
func (r *WorkflowRun) Clone() *WorkflowRun {
	if r == nil {
		return nil
	}

	clone := *r
	clone.EventPayload = CloneMap(r.EventPayload)
	snapshotActions := make([]ActionStep, len(r.DefinitionSnapshot.Actions))

	for i, step := range r.DefinitionSnapshot.Actions {
		step.Config = CloneMap(step.Config)
		snapshotActions[i] = step
	}

	clone.DefinitionSnapshot.Actions = snapshotActions
	clone.DefinitionSnapshot.TriggerConfig = CloneMap(r.DefinitionSnapshot.TriggerConfig)

	clone.StepResults = make([]StepResult, len(r.StepResults))
	for i, result := range r.StepResults {
		result.Output = CloneMap(result.Output)
		clone.StepResults[i] = result
	}

	clone.NextWakeAt = copyTime(r.NextWakeAt)
	clone.ClaimedAt = copyTime(r.ClaimedAt)
	clone.CompletedAt = copyTime(r.CompletedAt)

	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}

// DedupKey identifies one logical trigger occurrence: (definition, entity, event).
type DedupKey struct {
	DefinitionID string `json:"definition_id"`
	EntityID     string `json:"entity_id"`
	EventID      string `json:"event_id"`
}

// String renders the key in a form usable as a storage key.
func (k DedupKey) String() string {
	return k.DefinitionID + "|" + k.EntityID + "|" + k.EventID
}
