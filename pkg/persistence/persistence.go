// Package persistence provides the storage abstraction for workflow definitions and runs.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/cadence/pkg/models"
)

type Persistence interface {
	DefinitionRepository() DefinitionRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow templates.
type DefinitionRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error)
	// GetActiveByTrigger returns active definitions for one trigger type.
	GetActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	// Save inserts or replaces a definition.
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	Delete(ctx context.Context, id string) error
}

// RunRepository stores workflow runs.
//
// Update is a compare-and-swap on WorkflowRun.Version: it only writes when the stored
// version equals run.Version, and on success increments run.Version. Otherwise it
// returns ErrVersionConflict and leaves the stored run untouched.
type RunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	List(ctx context.Context, filter RunFilter) ([]*models.WorkflowRun, error)
	Update(ctx context.Context, run *models.WorkflowRun) error
	// DueRuns returns waiting runs with next_wake_at <= now, plus running runs claimed
	// and pending runs created before leaseCutoff, oldest wake time first.
	DueRuns(ctx context.Context, now time.Time, leaseCutoff time.Time, limit int) ([]*models.WorkflowRun, error)
}

// RunFilter narrows List. Zero values do not filter.
type RunFilter struct {
	DefinitionID string
	EntityID     string
	Status       models.RunStatus
	Limit        int
}

// DefaultRunListLimit caps List when the filter does not set a limit.
const DefaultRunListLimit = 100

// Matches reports whether run passes every filter that is set.
func (f RunFilter) Matches(run *models.WorkflowRun) bool {
	if f.DefinitionID != "" && run.WorkflowDefinitionID != f.DefinitionID {
		return false
	}

	if f.EntityID != "" && run.TargetEntityID != f.EntityID {
		return false
	}

	if f.Status != "" && run.Status != f.Status {
		return false
	}

	return true
}

// EffectiveLimit returns the list limit to apply.
func (f RunFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultRunListLimit {
		return DefaultRunListLimit
	}

	return f.Limit
}
