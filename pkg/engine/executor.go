package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/metrics"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/notify"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxCommitAttempts bounds how often a run write is re-applied after a version conflict.
const maxCommitAttempts = 5

// Executor claims runs and executes their steps in order.
type Executor struct {
	cfg       Config
	runs      persistence.RunRepository
	guard     idempotency.Guard
	registry  *registry.Registry
	entities  protocol.EntityStore
	notifier  protocol.NotificationSender
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	clock     clockwork.Clock
	lifecycle *lifecycle
	logger    *slog.Logger
}

func newExecutor(cfg Config, deps Dependencies, lc *lifecycle) *Executor {
	return &Executor{
		cfg:       cfg,
		runs:      deps.Runs,
		guard:     deps.Guard,
		registry:  deps.Registry,
		entities:  deps.Entities,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		clock:     deps.Clock,
		lifecycle: lc,
		logger:    deps.Logger.With("module", "executor", "worker_id", cfg.WorkerID),
	}
}

// Advance claims the run and executes steps until it waits or turns terminal.
// A run that is not claimable yields ErrRunNotClaimable and no side effect.
func (x *Executor) Advance(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return x.advanceAt(ctx, runID, x.now())
}

func (x *Executor) advanceAt(ctx context.Context, runID string, now time.Time) (*models.WorkflowRun, error) {
	ctx, span := otelhelper.StartSpan(ctx, x.tracer, "engine.advance",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.WorkerIDKey, x.cfg.WorkerID),
	)
	defer span.End()

	run, err := x.claim(ctx, runID, now)
	if err != nil {
		if !errors.Is(err, ErrRunNotClaimable) {
			otelhelper.SetError(span, err)
		}

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.DefinitionIDKey, run.WorkflowDefinitionID))

	logger := x.logger.With(
		"run_id", run.ID,
		"workflow_id", run.WorkflowDefinitionID,
		"entity_id", run.TargetEntityID,
	)
	logger.DebugContext(ctx, "Claimed run", "step_index", run.CurrentStepIndex)

	run, err = x.drive(ctx, run, logger)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return run, err
}

func (x *Executor) claim(ctx context.Context, runID string, now time.Time) (*models.WorkflowRun, error) {
	run, err := x.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if !x.claimable(run, now) {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotClaimable, run.ID, run.Status)
	}

	claimedAt := x.now()
	run.Status = models.RunStatusRunning
	run.ClaimedBy = x.cfg.WorkerID
	run.ClaimedAt = &claimedAt
	run.NextWakeAt = nil
	run.UpdatedAt = claimedAt

	if err := x.runs.Update(ctx, run); err != nil {
		if persistence.IsVersionConflict(err) {
			return nil, fmt.Errorf("%w: run %s was claimed concurrently", ErrRunNotClaimable, runID)
		}

		return nil, fmt.Errorf("failed to claim run %s: %w", runID, err)
	}

	return run, nil
}

func (x *Executor) claimable(run *models.WorkflowRun, now time.Time) bool {
	switch run.Status {
	case models.RunStatusPending:
		return true
	case models.RunStatusWaiting:
		return run.IsDue(now)
	case models.RunStatusRunning:
		return run.ClaimedAt != nil && !run.ClaimedAt.Add(x.cfg.ClaimLease).After(now)
	default:
		return false
	}
}

func (x *Executor) drive(ctx context.Context, run *models.WorkflowRun, logger *slog.Logger) (*models.WorkflowRun, error) {
	claimedAt := *run.ClaimedAt

	for {
		if run.CancelRequested {
			return x.finish(ctx, run, claimedAt, models.RunStatusCancelled, logger)
		}

		step, ok := run.CurrentStep()
		if !ok {
			return x.finish(ctx, run, claimedAt, models.RunStatusCompleted, logger)
		}

		result, err := x.runStep(ctx, run, step, logger)
		if err != nil {
			return run, err
		}

		run, err = x.commit(ctx, run, claimedAt, func(r *models.WorkflowRun) {
			x.applyStep(r, result)
		})
		if err != nil {
			return nil, err
		}

		if result != nil {
			x.lifecycle.stepEvent(ctx, run, *result)
		}

		switch {
		case run.Status == models.RunStatusWaiting:
			logger.InfoContext(ctx, "Run waiting",
				"step_index", run.CurrentStepIndex,
				"next_wake_at", run.NextWakeAt,
			)
			x.lifecycle.runEvent(ctx, events.RunWaitingEvent, run)

			return run, nil
		case run.Status.IsTerminal():
			x.onTerminal(ctx, run, logger)

			return run, nil
		}
	}
}

// applyStep records the outcome of the current step and moves the run to its next state.
// It is safe to apply twice to the same run.
func (x *Executor) applyStep(run *models.WorkflowRun, result *models.StepResult) {
	now := x.now()
	run.UpdatedAt = now

	if result != nil {
		if _, recorded := run.StepResult(result.Index); !recorded {
			run.StepResults = append(run.StepResults, *result)
		}

		if result.Status == models.StepStatusFailed {
			markTerminal(run, models.RunStatusFailed, now)

			return
		}
	}

	next := run.CurrentStepIndex + 1
	if next >= len(run.DefinitionSnapshot.Actions) {
		markTerminal(run, models.RunStatusCompleted, now)

		return
	}

	if run.CancelRequested {
		markTerminal(run, models.RunStatusCancelled, now)

		return
	}

	run.CurrentStepIndex = next

	if delay := run.DefinitionSnapshot.Actions[next].Delay(); delay > 0 {
		wakeAt := now.Add(delay)
		run.Status = models.RunStatusWaiting
		run.NextWakeAt = &wakeAt
		run.ClaimedBy = ""
		run.ClaimedAt = nil
	}
}

func markTerminal(run *models.WorkflowRun, status models.RunStatus, now time.Time) {
	run.Status = status
	run.CompletedAt = &now
	run.UpdatedAt = now
	run.NextWakeAt = nil
	run.ClaimedBy = ""
	run.ClaimedAt = nil
}

func (x *Executor) finish(ctx context.Context, run *models.WorkflowRun, claimedAt time.Time, status models.RunStatus, logger *slog.Logger) (*models.WorkflowRun, error) {
	run, err := x.commit(ctx, run, claimedAt, func(r *models.WorkflowRun) {
		markTerminal(r, status, x.now())
	})
	if err != nil {
		return nil, err
	}

	x.onTerminal(ctx, run, logger)

	return run, nil
}

func (x *Executor) onTerminal(ctx context.Context, run *models.WorkflowRun, logger *slog.Logger) {
	if err := x.guard.Release(ctx, run.DedupKey()); err != nil {
		logger.WarnContext(ctx, "Failed to release dedup key", "error", err)
	}

	x.metrics.RunFinished(string(run.Status))
	x.lifecycle.runEvent(ctx, terminalEvent(run.Status), run)

	logger.InfoContext(ctx, "Run finished",
		"status", run.Status,
		"steps_recorded", len(run.StepResults),
	)
}

// commit writes mutate(run) with a CAS on the version. On a conflict the run is reloaded
// and mutate is re-applied, provided this worker still holds the claim taken at claimedAt.
func (x *Executor) commit(ctx context.Context, run *models.WorkflowRun, claimedAt time.Time, mutate func(*models.WorkflowRun)) (*models.WorkflowRun, error) {
	current := run

	for range maxCommitAttempts {
		next := current.Clone()
		mutate(next)

		err := x.runs.Update(ctx, next)
		if err == nil {
			return next, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, fmt.Errorf("failed to update run %s: %w", run.ID, err)
		}

		current, err = x.runs.GetByID(ctx, run.ID)
		if err != nil {
			return nil, err
		}

		if !x.holdsClaim(current, claimedAt) {
			return nil, fmt.Errorf("%w: run %s lost its claim", ErrRunNotClaimable, run.ID)
		}
	}

	return nil, fmt.Errorf("%w: run %s kept changing", ErrRunNotClaimable, run.ID)
}

func (x *Executor) holdsClaim(run *models.WorkflowRun, claimedAt time.Time) bool {
	return run.Status == models.RunStatusRunning &&
		run.ClaimedBy == x.cfg.WorkerID &&
		run.ClaimedAt != nil &&
		run.ClaimedAt.Equal(claimedAt)
}

// runStep executes one step and returns its result. Delay steps return a nil result and
// are not recorded. An error means the outcome could not be determined; the run keeps its
// claim and is recovered once the lease expires.
func (x *Executor) runStep(ctx context.Context, run *models.WorkflowRun, step models.ActionStep, logger *slog.Logger) (*models.StepResult, error) {
	logger = logger.With("step_index", step.Index, "action_type", step.ActionType)

	if step.ActionType == models.ActionDelay {
		logger.DebugContext(ctx, "Delay step elapsed")

		return nil, nil
	}

	ctx, span := otelhelper.StartSpan(ctx, x.tracer, "engine.step",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.ActionTypeKey, string(step.ActionType)),
		attribute.Int(otelhelper.StepIndexKey, step.Index),
	)
	defer span.End()

	first, err := x.guard.ReleaseStep(ctx, run.ID, step.Index)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to record step %d of run %s: %w", step.Index, run.ID, err)
	}

	if !first {
		if recorded, ok := run.StepResult(step.Index); ok {
			logger.InfoContext(ctx, "Reusing recorded step result", "status", recorded.Status)

			return &recorded, nil
		}

		logger.WarnContext(ctx, "Step was started before and left no recorded outcome")
		result := x.stepResult(step, 0, nil, &PermanentError{
			ActionType: step.ActionType,
			StepIndex:  step.Index,
			Err:        ErrStepOutcomeUnknown,
		})

		return &result, nil
	}

	started := x.clock.Now()
	output, attempts, err := x.execute(ctx, run, step, logger)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("step %d of run %s interrupted: %w", step.Index, run.ID, ctx.Err())
	}

	result := x.stepResult(step, attempts, output, err)
	x.metrics.StepExecuted(string(step.ActionType), string(result.Status), attempts, x.clock.Since(started))

	if err != nil {
		kind := "permanent"
		if IsTransient(err) {
			kind = "transient"
		}

		otelhelper.SetError(span, err, attribute.String(otelhelper.ErrorKindKey, kind))
		logger.WarnContext(ctx, "Step failed", "attempts", attempts, "error", err)
	} else {
		logger.InfoContext(ctx, "Step succeeded", "attempts", attempts)
	}

	return &result, nil
}

func (x *Executor) execute(ctx context.Context, run *models.WorkflowRun, step models.ActionStep, logger *slog.Logger) (map[string]any, int, error) {
	action, err := x.registry.CreateAction(step.ActionType, step.Config)
	if err != nil {
		return nil, 0, &PermanentError{ActionType: step.ActionType, StepIndex: step.Index, Err: err}
	}

	stepCtx := protocol.StepContext{
		RunID:        run.ID,
		DefinitionID: run.WorkflowDefinitionID,
		Step:         step,
		EntityID:     run.TargetEntityID,
		EntityType:   run.TargetEntityType,
		EventPayload: run.EventPayload,
		Entities:     x.entities,
		Notifier:     x.notifier,
		Logger:       logger,
	}
	ctx = notify.WithRunID(ctx, run.ID)
	attempts := 0

	operation := func() (map[string]any, error) {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, x.cfg.StepTimeout)
		defer cancel()

		output, err := action.Execute(attemptCtx, stepCtx)
		if err == nil {
			return output, nil
		}

		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}

		classified := classify(step, err)
		if !IsTransient(classified) {
			return nil, backoff.Permanent(classified)
		}

		logger.DebugContext(ctx, "Step attempt failed", "attempt", attempts, "error", err)

		return nil, classified
	}

	output, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(x.newBackOff()),
		backoff.WithMaxTries(uint(x.cfg.MaxAttempts)),
	)

	return output, attempts, err
}

func (x *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = x.cfg.InitialBackoff
	b.MaxInterval = x.cfg.MaxBackoff

	return b
}

func (x *Executor) stepResult(step models.ActionStep, attempts int, output map[string]any, err error) models.StepResult {
	result := models.StepResult{
		Index:      step.Index,
		ActionType: step.ActionType,
		Status:     models.StepStatusSucceeded,
		ExecutedAt: x.now(),
		Attempts:   attempts,
		Output:     output,
	}

	if err != nil {
		result.Status = models.StepStatusFailed
		result.Output = nil
		result.Error = err.Error()
	}

	return result
}

// Cancel moves a pending or waiting run straight to cancelled. A running run is flagged
// and stops after its current step. Terminal runs yield ErrRunTerminal.
func (x *Executor) Cancel(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	logger := x.logger.With("run_id", runID)

	for range maxCommitAttempts {
		run, err := x.runs.GetByID(ctx, runID)
		if err != nil {
			return nil, err
		}

		now := x.now()

		switch {
		case run.Status.IsTerminal():
			return run, fmt.Errorf("%w: run %s is %s", ErrRunTerminal, runID, run.Status)
		case run.Status == models.RunStatusRunning:
			if run.CancelRequested {
				return run, nil
			}

			run.CancelRequested = true
			run.UpdatedAt = now
		default:
			run.CancelRequested = true
			markTerminal(run, models.RunStatusCancelled, now)
		}

		err = x.runs.Update(ctx, run)
		if persistence.IsVersionConflict(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to cancel run %s: %w", runID, err)
		}

		if run.Status == models.RunStatusCancelled {
			x.onTerminal(ctx, run, logger.With("workflow_id", run.WorkflowDefinitionID))
		} else {
			logger.InfoContext(ctx, "Cancellation requested for running run")
		}

		return run, nil
	}

	return nil, fmt.Errorf("failed to cancel run %s: %w", runID, persistence.ErrVersionConflict)
}

// now is the engine time used for every stored timestamp, truncated to what the SQL
// backend keeps so claims compare equal after a round trip.
func (x *Executor) now() time.Time {
	return x.clock.Now().UTC().Truncate(time.Microsecond)
}
