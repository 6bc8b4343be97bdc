package web

import (
	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/services"
)

// ActionStepRequest is one pipeline step in a definition request body.
type ActionStepRequest struct {
	ActionType      string         `json:"action_type"       validate:"required"`
	Config          map[string]any `json:"config,omitempty"`
	DelayBeforeDays int            `json:"delay_before_days" validate:"min=0"`
}

// CreateDefinitionRequest represents the request body for creating a workflow definition.
// IsActive defaults to true when omitted.
type CreateDefinitionRequest struct {
	Name          string              `json:"name"                     validate:"required,min=3"`
	Description   string              `json:"description"`
	TriggerType   string              `json:"trigger_type"             validate:"required"`
	TriggerConfig map[string]any      `json:"trigger_config,omitempty"`
	Actions       []ActionStepRequest `json:"actions"                  validate:"required,min=1,dive"`
	IsActive      *bool               `json:"is_active,omitempty"`
}

// UpdateDefinitionRequest represents the request body for updating a workflow definition.
// All fields are optional to support partial updates.
type UpdateDefinitionRequest struct {
	Name          *string             `json:"name,omitempty"           validate:"omitempty,min=3"`
	Description   *string             `json:"description,omitempty"`
	TriggerType   *string             `json:"trigger_type,omitempty"   validate:"omitempty,min=1"`
	TriggerConfig map[string]any      `json:"trigger_config,omitempty"`
	Actions       []ActionStepRequest `json:"actions,omitempty"        validate:"omitempty,min=1,dive"`
	IsActive      *bool               `json:"is_active,omitempty"`
}

// SubmitEventResponse reports what one submitted event produced.
type SubmitEventResponse struct {
	Scheduled  []*models.WorkflowRun `json:"scheduled"`
	Duplicates int                   `json:"duplicates"`
	Errors     []string              `json:"errors,omitempty"`
}

// Definition converts the request into a model ready for the definition service.
func (r CreateDefinitionRequest) Definition() *models.WorkflowDefinition {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.WorkflowDefinition{
		Name:          r.Name,
		Description:   r.Description,
		TriggerType:   models.TriggerType(r.TriggerType),
		TriggerConfig: r.TriggerConfig,
		Actions:       toSteps(r.Actions),
		IsActive:      active,
	}
}

// Patch converts the request into a partial update.
func (r UpdateDefinitionRequest) Patch() services.DefinitionPatch {
	patch := services.DefinitionPatch{
		Name:          r.Name,
		Description:   r.Description,
		TriggerConfig: r.TriggerConfig,
		IsActive:      r.IsActive,
	}

	if r.TriggerType != nil {
		triggerType := models.TriggerType(*r.TriggerType)
		patch.TriggerType = &triggerType
	}

	if r.Actions != nil {
		patch.Actions = toSteps(r.Actions)
	}

	return patch
}

func toSteps(requests []ActionStepRequest) []models.ActionStep {
	steps := make([]models.ActionStep, len(requests))
	for i, step := range requests {
		steps[i] = models.ActionStep{
			Index:           i,
			ActionType:      models.ActionType(step.ActionType),
			Config:          step.Config,
			DelayBeforeDays: step.DelayBeforeDays,
		}
	}

	return steps
}

func newSubmitEventResponse(result engine.SubmitResult) SubmitEventResponse {
	response := SubmitEventResponse{
		Scheduled:  result.Scheduled,
		Duplicates: result.Duplicates,
	}

	if response.Scheduled == nil {
		response.Scheduled = []*models.WorkflowRun{}
	}

	for _, err := range result.Errors {
		response.Errors = append(response.Errors, err.Error())
	}

	return response
}
