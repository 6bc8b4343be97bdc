// Package models defines the core domain models for trigger-driven workflow automation.
package models

import "time"

// TriggerType names the kind of domain event a workflow responds to.
type TriggerType string

// Built-in trigger types. The registry decides which ones are accepted.
const (
	TriggerProfileCreated        TriggerType = "profile_created"
	TriggerCompletenessThreshold TriggerType = "completeness_threshold"
	TriggerStatusChanged         TriggerType = "status_changed"
	TriggerDocumentUploaded      TriggerType = "document_uploaded"
	TriggerDocumentRejected      TriggerType = "document_rejected"
)

// ActionType names the kind of work an action step performs.
type ActionType string

// Built-in action types. The registry decides which ones are accepted.
const (
	ActionCreateTask   ActionType = "create_task"
	ActionSendMessage  ActionType = "send_message"
	ActionSendEmail    ActionType = "send_email"
	ActionUpdateStatus ActionType = "update_status"
	ActionDelay        ActionType = "delay"
)

// WorkflowDefinition is an operator-authored template: a trigger plus an ordered action pipeline.
type WorkflowDefinition struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"                     validate:"required,min=3"`
	Description   string         `json:"description"`
	TriggerType   TriggerType    `json:"trigger_type"             validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	Actions       []ActionStep   `json:"actions"                  validate:"required,min=1,dive"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ActionStep is one position in a definition's pipeline. Index is the execution order.
type ActionStep struct {
	Index           int            `json:"index"`
	ActionType      ActionType     `json:"action_type"       validate:"required"`
	Config          map[string]any `json:"config,omitempty"`
	DelayBeforeDays int            `json:"delay_before_days" validate:"min=0"`
}

// Delay returns the wait before the step as a duration.
func (s ActionStep) Delay() time.Duration {
	return time.Duration(s.DelayBeforeDays) * 24 * time.Hour
}

// DefinitionSnapshot is the frozen copy of a definition stored on every run.
type DefinitionSnapshot struct {
	Name          string         `json:"name"`
	TriggerType   TriggerType    `json:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	Actions       []ActionStep   `json:"actions"`
}

// Snapshot deep-copies the parts of the definition a run depends on.
func (d *WorkflowDefinition) Snapshot() DefinitionSnapshot {
	actions := make([]ActionStep, len(d.Actions))
	for i, step := range d.Actions {
		actions[i] = ActionStep{
			Index:           step.Index,
			ActionType:      step.ActionType,
			Config:          CloneMap(step.Config),
			DelayBeforeDays: step.DelayBeforeDays,
		}
	}

	return DefinitionSnapshot{
		Name:          d.Name,
		TriggerType:   d.TriggerType,
		TriggerConfig: CloneMap(d.TriggerConfig),
		Actions:       actions,
	}
}

// NormalizeIndexes rewrites step indexes to match their slice position.
func (d *WorkflowDefinition) NormalizeIndexes() {
	for i := range d.Actions {
		d.Actions[i].Index = i
	}
}

// CloneMap returns a deep copy of a JSON-like map.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
