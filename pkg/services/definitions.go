// Package services implements the admin operations on workflow definitions and runs.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Definitions struct {
	repository persistence.DefinitionRepository
	registry   *registry.Registry
	validate   *validator.Validate
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewDefinitions creates a new definition service.
func NewDefinitions(
	repository persistence.DefinitionRepository,
	reg *registry.Registry,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Definitions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Definitions{
		repository: repository,
		registry:   reg,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		clock:      clock,
		logger:     logger.With("module", "definitions"),
	}
}

// DefinitionPatch carries a partial update. Nil fields keep the stored value.
type DefinitionPatch struct {
	Name          *string
	Description   *string
	TriggerType   *models.TriggerType
	TriggerConfig map[string]any
	Actions       []models.ActionStep
	IsActive      *bool
}

// ListDefinitionsRequest contains options for listing definitions.
type ListDefinitionsRequest struct {
	TriggerType models.TriggerType
	ActiveOnly  bool
}

// Create validates and stores a new definition.
func (s *Definitions) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if definition == nil {
		return nil, ErrDefinitionNil
	}

	now := s.clock.Now().UTC()

	if definition.ID == "" {
		definition.ID = uuid.New().String()
	}

	definition.CreatedAt = now
	definition.UpdatedAt = now
	definition.NormalizeIndexes()

	if err := s.check("Create", definition); err != nil {
		return nil, err
	}

	if err := s.repository.Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to create workflow definition: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "Created workflow definition",
		"workflow_id", definition.ID,
		"trigger_type", definition.TriggerType,
		"actions", len(definition.Actions))

	return definition, nil
}

// Update applies a partial update and revalidates the merged definition.
// Runs already scheduled keep the snapshot they were created with.
func (s *Definitions) Update(ctx context.Context, id string, patch DefinitionPatch) (*models.WorkflowDefinition, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		existing.Name = *patch.Name
	}

	if patch.Description != nil {
		existing.Description = *patch.Description
	}

	if patch.TriggerType != nil {
		existing.TriggerType = *patch.TriggerType
	}

	if patch.TriggerConfig != nil {
		existing.TriggerConfig = patch.TriggerConfig
	}

	if patch.Actions != nil {
		existing.Actions = patch.Actions
	}

	if patch.IsActive != nil {
		existing.IsActive = *patch.IsActive
	}

	existing.NormalizeIndexes()
	existing.UpdatedAt = s.clock.Now().UTC()

	if err := s.check("Update", existing); err != nil {
		return nil, err
	}

	if err := s.repository.Save(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update workflow definition: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "Updated workflow definition", "workflow_id", id)

	return existing, nil
}

// Deactivate stops a definition from matching new events.
func (s *Definitions) Deactivate(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	inactive := false

	return s.Update(ctx, id, DefinitionPatch{IsActive: &inactive})
}

// Delete removes a definition. Its runs keep executing from their snapshots.
func (s *Definitions) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrDefinitionIDNeeded
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		return err
	}

	s.log(ctx).InfoContext(ctx, "Deleted workflow definition", "workflow_id", id)

	return nil
}

// Get retrieves a definition by its ID.
func (s *Definitions) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	if id == "" {
		return nil, ErrDefinitionIDNeeded
	}

	return s.repository.GetByID(ctx, id)
}

// List returns definitions, newest first.
func (s *Definitions) List(ctx context.Context, req ListDefinitionsRequest) ([]*models.WorkflowDefinition, error) {
	if req.TriggerType != "" && !s.registry.HasTrigger(req.TriggerType) {
		return nil, NewValidationError(
			"List",
			"INVALID_TRIGGER_TYPE",
			fmt.Sprintf("unknown trigger type '%s'", req.TriggerType),
			ErrInvalidTrigger,
		)
	}

	all, err := s.repository.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(all))

	for _, definition := range all {
		if req.TriggerType != "" && definition.TriggerType != req.TriggerType {
			continue
		}

		if req.ActiveOnly && !definition.IsActive {
			continue
		}

		definitions = append(definitions, definition)
	}

	slices.SortStableFunc(definitions, func(a, b *models.WorkflowDefinition) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return definitions, nil
}

// log prefers the request scoped logger carried by ctx.
func (s *Definitions) log(ctx context.Context) *slog.Logger {
	return log.FromContext(ctx, s.logger)
}

func (s *Definitions) check(op string, definition *models.WorkflowDefinition) error {
	if err := s.validate.Struct(definition); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(op, "INVALID_DEFINITION", describe(validationErrors), ErrInvalidRequest)
		}

		return NewValidationError(op, "INVALID_DEFINITION", err.Error(), ErrInvalidRequest)
	}

	if err := s.registry.ValidateTriggerConfig(definition.TriggerType, definition.TriggerConfig); err != nil {
		return NewValidationError(op, "INVALID_TRIGGER", err.Error(), errors.Join(ErrInvalidTrigger, err))
	}

	for _, step := range definition.Actions {
		if err := s.registry.ValidateActionConfig(step.ActionType, step.Config); err != nil {
			return NewValidationError(
				op,
				"INVALID_ACTION",
				fmt.Sprintf("step %d: %v", step.Index, err),
				errors.Join(ErrInvalidAction, err),
			)
		}
	}

	return nil
}

func describe(validationErrors validator.ValidationErrors) string {
	messages := make([]string, 0, len(validationErrors))

	for _, fieldErr := range validationErrors {
		if fieldErr.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Param()))

			continue
		}

		messages = append(messages, fmt.Sprintf("%s is %s", fieldErr.Namespace(), fieldErr.Tag()))
	}

	return strings.Join(messages, "; ")
}
