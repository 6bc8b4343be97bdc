package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

// RunCanceller is the engine operation the run service delegates cancellation to.
type RunCanceller interface {
	Cancel(ctx context.Context, runID string) (*models.WorkflowRun, error)
}

type Runs struct {
	persistence persistence.Persistence
	canceller   RunCanceller
	logger      *slog.Logger
}

// NewRuns creates a new run service.
func NewRuns(p persistence.Persistence, canceller RunCanceller, logger *slog.Logger) *Runs {
	return &Runs{
		persistence: p,
		canceller:   canceller,
		logger:      logger.With("module", "runs"),
	}
}

// ListRunsRequest contains options for listing runs.
type ListRunsRequest struct {
	DefinitionID string
	EntityID     string
	Status       models.RunStatus
	Limit        int
}

var knownStatuses = []models.RunStatus{
	models.RunStatusPending,
	models.RunStatusRunning,
	models.RunStatusWaiting,
	models.RunStatusCompleted,
	models.RunStatusFailed,
	models.RunStatusCancelled,
}

// HealthCheck checks the health of the persistence layer.
func (s *Runs) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Get retrieves a run by its ID.
func (s *Runs) Get(ctx context.Context, id string) (*models.WorkflowRun, error) {
	if id == "" {
		return nil, NewValidationError("Get", "INVALID_RUN_ID", "run id is required", ErrInvalidRequest)
	}

	return s.persistence.RunRepository().GetByID(ctx, id)
}

// List returns runs matching the request, newest first.
func (s *Runs) List(ctx context.Context, req ListRunsRequest) ([]*models.WorkflowRun, error) {
	if req.Status != "" && !slices.Contains(knownStatuses, req.Status) {
		return nil, NewValidationError(
			"List",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", req.Status),
			ErrInvalidStatus,
		)
	}

	if req.Limit < 0 || req.Limit > persistence.DefaultRunListLimit {
		return nil, NewValidationError(
			"List",
			"INVALID_LIMIT",
			fmt.Sprintf("limit must be between 0 and %d", persistence.DefaultRunListLimit),
			ErrInvalidRequest,
		)
	}

	runs, err := s.persistence.RunRepository().List(ctx, persistence.RunFilter{
		DefinitionID: req.DefinitionID,
		EntityID:     req.EntityID,
		Status:       req.Status,
		Limit:        req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	return runs, nil
}

// Cancel stops a run. Waiting and pending runs are cancelled at once; a run that is
// executing a step is cancelled before its next step starts.
func (s *Runs) Cancel(ctx context.Context, id string) (*models.WorkflowRun, error) {
	if id == "" {
		return nil, NewValidationError("Cancel", "INVALID_RUN_ID", "run id is required", ErrInvalidRequest)
	}

	run, err := s.canceller.Cancel(ctx, id)
	if err != nil {
		return run, err
	}

	s.log(ctx).InfoContext(ctx, "Cancellation accepted",
		"run_id", id,
		"status", run.Status,
		"cancel_requested", run.CancelRequested)

	return run, nil
}

func (s *Runs) log(ctx context.Context) *slog.Logger {
	return log.FromContext(ctx, s.logger)
}
