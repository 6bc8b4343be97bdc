package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const runColumns = `
	id
  , workflow_definition_id
  , definition_snapshot
  , target_entity_id
  , target_entity_type
  , triggering_event_id
  , event_payload
  , status
  , current_step_index
  , next_wake_at
  , step_results
  , cancel_requested
  , claimed_by
  , claimed_at
  , version
  , created_at
  , updated_at
  , completed_at
`

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	snapshot, payload, results, err := marshalRunDocuments(run)
	if err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		run.ID,
		run.WorkflowDefinitionID,
		snapshot,
		run.TargetEntityID,
		run.TargetEntityType,
		run.TriggeringEventID,
		payload,
		string(run.Status),
		run.CurrentStepIndex,
		run.NextWakeAt,
		results,
		run.CancelRequested,
		run.ClaimedBy,
		run.ClaimedAt,
		run.Version,
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
		}

		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) List(ctx context.Context, filter persistence.RunFilter) ([]*models.WorkflowRun, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.DefinitionID != "" {
		addCondition("workflow_definition_id", filter.DefinitionID)
	}

	if filter.EntityID != "" {
		addCondition("target_entity_id", filter.EntityID)
	}

	if filter.Status != "" {
		addCondition("status", string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM workflow_runs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.EffectiveLimit())
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	return r.query(ctx, query, args...)
}

func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	snapshot, payload, results, err := marshalRunDocuments(run)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs SET
			definition_snapshot = $3
		  , event_payload = $4
		  , status = $5
		  , current_step_index = $6
		  , next_wake_at = $7
		  , step_results = $8
		  , cancel_requested = $9
		  , claimed_by = $10
		  , claimed_at = $11
		  , updated_at = $12
		  , completed_at = $13
		  , version = version + 1
		WHERE id = $1 AND version = $2
	`,
		run.ID,
		run.Version,
		snapshot,
		payload,
		string(run.Status),
		run.CurrentStepIndex,
		run.NextWakeAt,
		results,
		run.CancelRequested,
		run.ClaimedBy,
		run.ClaimedAt,
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	if affected == 0 {
		if _, getErr := r.GetByID(ctx, run.ID); persistence.IsRunNotFound(getErr) {
			return getErr
		}

		return persistence.NewVersionConflictError("Update", run.ID, run.Version)
	}

	run.Version++

	return nil
}

func (r *RunRepository) DueRuns(ctx context.Context, now time.Time, leaseCutoff time.Time, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = persistence.DefaultRunListLimit
	}

	return r.query(ctx, `
		SELECT `+runColumns+`
		FROM workflow_runs
		WHERE (status = 'waiting' AND next_wake_at <= $1)
		   OR (status = 'running' AND claimed_at < $2)
		   OR (status = 'pending' AND created_at < $2)
		ORDER BY COALESCE(next_wake_at, claimed_at, created_at)
		LIMIT $3
	`, now, leaseCutoff, limit)
}

func (r *RunRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow runs: %w", err)
	}

	return runs, nil
}

func marshalRunDocuments(run *models.WorkflowRun) (snapshot, payload, results []byte, err error) {
	snapshot, err = json.Marshal(run.DefinitionSnapshot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal definition snapshot: %w", err)
	}

	payload, err = json.Marshal(nonNilMap(run.EventPayload))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	stepResults := run.StepResults
	if stepResults == nil {
		stepResults = []models.StepResult{}
	}

	results, err = json.Marshal(stepResults)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal step results: %w", err)
	}

	return snapshot, payload, results, nil
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		status      string
		snapshot    []byte
		payload     []byte
		results     []byte
		nextWakeAt  sql.NullTime
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowDefinitionID,
		&snapshot,
		&run.TargetEntityID,
		&run.TargetEntityType,
		&run.TriggeringEventID,
		&payload,
		&status,
		&run.CurrentStepIndex,
		&nextWakeAt,
		&results,
		&run.CancelRequested,
		&run.ClaimedBy,
		&claimedAt,
		&run.Version,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.NextWakeAt = nullTime(nextWakeAt)
	run.ClaimedAt = nullTime(claimedAt)
	run.CompletedAt = nullTime(completedAt)
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()

	if err := json.Unmarshal(snapshot, &run.DefinitionSnapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition snapshot: %w", err)
	}

	if err := json.Unmarshal(payload, &run.EventPayload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}

	if err := json.Unmarshal(results, &run.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}

	return &run, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}
