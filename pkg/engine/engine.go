// Package engine turns domain events into workflow runs and drives those runs through
// their action steps: the matcher selects definitions, the scheduler creates runs and
// wakes waiting ones, and the executor claims a run and executes its steps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/metrics"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators of the engine. Publisher, Metrics and Tracer are
// optional; Clock defaults to the real clock.
type Dependencies struct {
	Definitions persistence.DefinitionRepository
	Runs        persistence.RunRepository
	Guard       idempotency.Guard
	Registry    *registry.Registry
	Entities    protocol.EntityStore
	Notifier    protocol.NotificationSender
	Publisher   eventbus.EventPublisher
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Definitions == nil:
		return errors.New("definition repository is required")
	case d.Runs == nil:
		return errors.New("run repository is required")
	case d.Guard == nil:
		return errors.New("idempotency guard is required")
	case d.Registry == nil:
		return errors.New("registry is required")
	case d.Entities == nil:
		return errors.New("entity store is required")
	case d.Notifier == nil:
		return errors.New("notification sender is required")
	case d.Logger == nil:
		return errors.New("logger is required")
	}

	return nil
}

// Engine is the entry point used by the API and the worker.
type Engine struct {
	matcher   *Matcher
	scheduler *Scheduler
	executor  *Executor
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// SubmitResult reports what one submitted event caused.
type SubmitResult struct {
	Scheduled  []*models.WorkflowRun `json:"scheduled"`
	Duplicates int                   `json:"duplicates"`
	Errors     []error               `json:"-"`
}

func New(cfg Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine dependencies: %w", err)
	}

	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("cadence")
	}

	lc := &lifecycle{
		publisher: deps.Publisher,
		workerID:  cfg.WorkerID,
		clock:     deps.Clock,
		logger:    deps.Logger.With("module", "lifecycle"),
	}

	executor := newExecutor(cfg, deps, lc)

	return &Engine{
		matcher:   NewMatcher(deps.Definitions, deps.Registry, deps.Logger),
		scheduler: newScheduler(cfg, deps, executor, lc),
		executor:  executor,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    deps.Logger.With("module", "engine"),
	}, nil
}

// SubmitEvent validates the event, matches it and schedules one run per matching
// definition. Per-run failures are collected in the result; only an invalid event or an
// unavailable definition store is returned as an error.
func (e *Engine) SubmitEvent(ctx context.Context, event *events.DomainEvent) (SubmitResult, error) {
	if err := event.Validate(); err != nil {
		return SubmitResult{}, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.submit_event",
		attribute.String(otelhelper.EventIDKey, event.EventID),
		attribute.String(otelhelper.TriggerTypeKey, event.Type),
		attribute.String(otelhelper.EntityIDKey, event.EntityID),
	)
	defer span.End()

	e.metrics.EventSubmitted(event.Type)

	definitions, err := e.matcher.Match(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return SubmitResult{}, err
	}

	result := SubmitResult{Scheduled: make([]*models.WorkflowRun, 0, len(definitions))}

	for _, definition := range definitions {
		run, err := e.scheduler.Schedule(ctx, definition, event)

		switch {
		case errors.Is(err, ErrDuplicateRun):
			result.Duplicates++
		case err != nil:
			e.logger.ErrorContext(ctx, "Failed to schedule run",
				"workflow_id", definition.ID,
				"event_id", event.EventID,
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Errorf("definition %s: %w", definition.ID, err))
		default:
			result.Scheduled = append(result.Scheduled, run)
		}
	}

	e.logger.InfoContext(ctx, "Processed event",
		"event_id", event.EventID,
		"event_type", event.Type,
		"entity_id", event.EntityID,
		"matched", len(definitions),
		"scheduled", len(result.Scheduled),
		"duplicates", result.Duplicates,
		"errors", len(result.Errors),
	)

	return result, nil
}

// HandleDomainEvent adapts SubmitEvent to an event bus handler.
func (e *Engine) HandleDomainEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		return fmt.Errorf("%w: unexpected %T", events.ErrInvalidEventData, event)
	}

	_, err := e.SubmitEvent(ctx, domainEvent)
	if errors.Is(err, events.ErrInvalidEventData) {
		e.logger.WarnContext(ctx, "Dropping invalid domain event", "error", err)

		return nil
	}

	return err
}

func (e *Engine) Match(ctx context.Context, event *events.DomainEvent) ([]*models.WorkflowDefinition, error) {
	return e.matcher.Match(ctx, event)
}

func (e *Engine) Schedule(ctx context.Context, definition *models.WorkflowDefinition, event *events.DomainEvent) (*models.WorkflowRun, error) {
	return e.scheduler.Schedule(ctx, definition, event)
}

func (e *Engine) Advance(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return e.executor.Advance(ctx, runID)
}

func (e *Engine) Cancel(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return e.executor.Cancel(ctx, runID)
}

// Sweep advances every run due at now.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	return e.scheduler.Sweep(ctx, now)
}

// SweepNow runs Sweep at the engine clock's current time.
func (e *Engine) SweepNow(ctx context.Context) (SweepResult, error) {
	return e.scheduler.Sweep(ctx, e.scheduler.clock.Now())
}

// Start runs the wake sweep on its cron schedule until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}
