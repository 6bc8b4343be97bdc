package file

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

// DefinitionRepository handles definition-related file operations.
type DefinitionRepository struct {
	dir string
	mu  sync.RWMutex
}

func (r *DefinitionRepository) GetAll(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listIDs(r.dir)
	if err != nil {
		return nil, err
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		var definition models.WorkflowDefinition
		if err := readJSON(r.dir, id, &definition); err != nil {
			if isNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load workflow definition %s: %w", id, err)
		}

		definitions = append(definitions, &definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.Before(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (r *DefinitionRepository) GetActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.WorkflowDefinition, 0, len(all))

	for _, definition := range all {
		if definition.IsActive && definition.TriggerType == triggerType {
			active = append(active, definition)
		}
	}

	return active, nil
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	if !validID(id) {
		return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var definition models.WorkflowDefinition
	if err := readJSON(r.dir, id, &definition); err != nil {
		if isNotExist(err) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	return &definition, nil
}

func (r *DefinitionRepository) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	if !validID(definition.ID) {
		return persistence.NewDefinitionError("Save", definition.ID, fmt.Errorf("invalid identifier %q", definition.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.dir, definition.ID, definition)
}

func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := removeJSON(r.dir, id); err != nil {
		if isNotExist(err) {
			return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
		}

		return persistence.NewDefinitionError("Delete", id, err)
	}

	return nil
}
