package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const definitionColumns = `
	id
  , name
  , description
  , trigger_type
  , trigger_config
  , actions
  , is_active
  , created_at
  , updated_at
`

// DefinitionRepository handles definition-related database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

func (r *DefinitionRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return r.query(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions ORDER BY created_at`)
}

func (r *DefinitionRepository) GetActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error) {
	return r.query(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE is_active AND trigger_type = $1
		ORDER BY created_at
	`, string(triggerType))
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions WHERE id = $1`, id)

	definition, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	return definition, nil
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	triggerConfig, err := json.Marshal(nonNilMap(definition.TriggerConfig))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	actions, err := json.Marshal(definition.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger_type = EXCLUDED.trigger_type
		  , trigger_config = EXCLUDED.trigger_config
		  , actions = EXCLUDED.actions
		  , is_active = EXCLUDED.is_active
		  , updated_at = EXCLUDED.updated_at
	`,
		definition.ID,
		definition.Name,
		definition.Description,
		string(definition.TriggerType),
		triggerConfig,
		actions,
		definition.IsActive,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewDefinitionError("Save", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return definitions, nil
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		definition    models.WorkflowDefinition
		triggerType   string
		triggerConfig []byte
		actions       []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.Name,
		&definition.Description,
		&triggerType,
		&triggerConfig,
		&actions,
		&definition.IsActive,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	definition.TriggerType = models.TriggerType(triggerType)

	if err := json.Unmarshal(triggerConfig, &definition.TriggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(actions, &definition.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	definition.CreatedAt = definition.CreatedAt.UTC()
	definition.UpdatedAt = definition.UpdatedAt.UTC()

	return &definition, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
