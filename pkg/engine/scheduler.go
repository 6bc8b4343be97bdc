package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/metrics"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Scheduler creates runs for matched definitions and wakes runs that are due.
type Scheduler struct {
	cfg       Config
	runs      persistence.RunRepository
	guard     idempotency.Guard
	executor  *Executor
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	clock     clockwork.Clock
	lifecycle *lifecycle
	logger    *slog.Logger
}

// SweepResult summarizes one wake sweep.
type SweepResult struct {
	Examined int `json:"examined"`
	Advanced int `json:"advanced"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func newScheduler(cfg Config, deps Dependencies, executor *Executor, lc *lifecycle) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		runs:      deps.Runs,
		guard:     deps.Guard,
		executor:  executor,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		clock:     deps.Clock,
		lifecycle: lc,
		logger:    deps.Logger.With("module", "scheduler", "worker_id", cfg.WorkerID),
	}
}

// Schedule creates the run of definition for event, unless the dedup key
// (definition, entity, event) is already held, in which case it returns ErrDuplicateRun.
// A pending run is advanced before Schedule returns.
func (s *Scheduler) Schedule(ctx context.Context, definition *models.WorkflowDefinition, event *events.DomainEvent) (*models.WorkflowRun, error) {
	key := models.DedupKey{
		DefinitionID: definition.ID,
		EntityID:     event.EntityID,
		EventID:      event.EventID,
	}

	logger := s.logger.With(
		"workflow_id", definition.ID,
		"entity_id", event.EntityID,
		"event_id", event.EventID,
	)

	acquired, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	if !acquired {
		logger.DebugContext(ctx, "Duplicate run rejected")
		s.metrics.RunDuplicate(string(definition.TriggerType))

		return nil, ErrDuplicateRun
	}

	run, err := s.newRun(definition, event)
	if err != nil {
		s.forget(ctx, key, logger)

		return nil, err
	}

	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, persistence.ErrRunAlreadyExists) {
			logger.DebugContext(ctx, "Duplicate run rejected by the run store")
			s.metrics.RunDuplicate(string(definition.TriggerType))

			return nil, ErrDuplicateRun
		}

		s.forget(ctx, key, logger)

		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.metrics.RunScheduled(string(definition.TriggerType))
	s.lifecycle.runEvent(ctx, events.RunScheduledEvent, run)

	logger = logger.With("run_id", run.ID)
	logger.InfoContext(ctx, "Run scheduled", "status", run.Status, "next_wake_at", run.NextWakeAt)

	if run.Status != models.RunStatusPending {
		return run, nil
	}

	advanced, err := s.executor.Advance(ctx, run.ID)

	switch {
	case err == nil:
		return advanced, nil
	case errors.Is(err, ErrRunNotClaimable):
		logger.DebugContext(ctx, "New run was claimed elsewhere")
	default:
		logger.ErrorContext(ctx, "Failed to advance new run, the sweep will retry", "error", err)
	}

	return run, nil
}

func (s *Scheduler) forget(ctx context.Context, key models.DedupKey, logger *slog.Logger) {
	if err := s.guard.Forget(ctx, key); err != nil {
		logger.WarnContext(ctx, "Failed to free dedup key", "error", err)
	}
}

func (s *Scheduler) newRun(definition *models.WorkflowDefinition, event *events.DomainEvent) (*models.WorkflowRun, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	now := s.executor.now()

	run := &models.WorkflowRun{
		ID:                   id.String(),
		WorkflowDefinitionID: definition.ID,
		DefinitionSnapshot:   definition.Snapshot(),
		TargetEntityID:       event.EntityID,
		TargetEntityType:     event.EntityType,
		TriggeringEventID:    event.EventID,
		EventPayload:         models.CloneMap(event.Payload),
		Status:               models.RunStatusPending,
		CurrentStepIndex:     0,
		StepResults:          []models.StepResult{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if first, ok := run.CurrentStep(); ok && first.Delay() > 0 {
		wakeAt := now.Add(first.Delay())
		run.Status = models.RunStatusWaiting
		run.NextWakeAt = &wakeAt
	}

	return run, nil
}

// Sweep advances every run that is due at now: waiting runs whose wake time passed,
// running runs whose claim lease expired and pending runs nobody picked up. Runs are
// advanced concurrently, bounded by SweepConcurrency.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "engine.sweep",
		attribute.String(otelhelper.WorkerIDKey, s.cfg.WorkerID),
	)
	defer span.End()

	started := s.clock.Now()

	due, err := s.runs.DueRuns(ctx, now, now.Add(-s.cfg.ClaimLease), s.cfg.SweepBatchSize)
	if err != nil {
		otelhelper.SetError(span, err)

		return SweepResult{}, fmt.Errorf("failed to list due runs: %w", err)
	}

	var (
		advanced, skipped, failed atomic.Int64
		group                     errgroup.Group
	)

	group.SetLimit(s.cfg.SweepConcurrency)

	for _, run := range due {
		group.Go(func() error {
			_, err := s.executor.advanceAt(ctx, run.ID, now)

			switch {
			case err == nil:
				advanced.Add(1)
			case errors.Is(err, ErrRunNotClaimable):
				skipped.Add(1)
			default:
				failed.Add(1)
				s.logger.ErrorContext(ctx, "Failed to advance due run", "run_id", run.ID, "error", err)
			}

			return nil
		})
	}

	_ = group.Wait()

	result := SweepResult{
		Examined: len(due),
		Advanced: int(advanced.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}

	s.metrics.SweepFinished(s.clock.Since(started), result.Advanced, result.Skipped, result.Failed)

	if result.Examined > 0 {
		s.logger.InfoContext(ctx, "Wake sweep finished",
			"examined", result.Examined,
			"advanced", result.Advanced,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}

	return result, nil
}

// Start runs Sweep on the configured cron schedule and blocks until ctx is done.
// A tick is skipped while the previous sweep is still running.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	if _, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		if _, err := s.Sweep(ctx, s.clock.Now()); err != nil {
			s.logger.ErrorContext(ctx, "Wake sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}

	c.Start()
	s.logger.InfoContext(ctx, "Wake sweep started", "schedule", s.cfg.SweepSchedule)

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("Wake sweep stopped")

	return nil
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
