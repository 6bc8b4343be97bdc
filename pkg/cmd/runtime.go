package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/metrics"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

// Runtime owns everything a binary builds from the engine flags.
type Runtime struct {
	WorkerID    string
	Engine      *engine.Engine
	Persistence persistence.Persistence
	Registry    *registry.Registry
	EventBus    eventbus.EventBus
	Prometheus  *prometheus.Registry
	Clock       clockwork.Clock

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

// NewRuntime wires persistence, the idempotency guard, the entity store, the event
// bus, tracing and metrics into an engine. Close releases them in reverse order.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = serviceName + "-" + uuid.New().String()[:8]
	}

	r := &Runtime{
		WorkerID: workerID,
		Clock:    clockwork.NewRealClock(),
		logger:   logger,
	}

	if err := r.build(ctx, command, serviceName); err != nil {
		r.Close(ctx)

		return nil, err
	}

	return r, nil
}

func (r *Runtime) build(ctx context.Context, command *cli.Command, serviceName string) error {
	cfg := EngineConfig(command, r.WorkerID)
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.Registry = NewRegistry(r.logger)

	p, err := NewPersistence(ctx, r.logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	r.Persistence = p
	r.closers = append(r.closers, p.Close)

	guard, closeGuard, err := NewGuard(ctx, command.String("idempotency"), p, command.String("redis-url"), r.Clock, cfg.DedupRetention)
	if err != nil {
		return fmt.Errorf("failed to initialize idempotency guard: %w", err)
	}

	r.closers = append(r.closers, func(context.Context) error { return closeGuard() })

	entities, err := NewEntityStore(ctx, r.logger, command.String("entity-store"), p)
	if err != nil {
		return fmt.Errorf("failed to initialize entity store: %w", err)
	}

	bus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, r.logger)
	if err != nil {
		return err
	}

	r.EventBus = bus
	r.closers = append(r.closers, func(context.Context) error { return bus.Close() })

	notifier, err := NewNotificationSender(command.String("notification-sender"), bus, r.Clock, r.logger)
	if err != nil {
		return err
	}

	tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, serviceName, command.Bool("otel"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	r.closers = append(r.closers, func(ctx context.Context) error { return shutdownTracer(ctx) })

	r.Prometheus = prometheus.NewRegistry()
	r.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r.Engine, err = engine.New(cfg, engine.Dependencies{
		Definitions: p.DefinitionRepository(),
		Runs:        p.RunRepository(),
		Guard:       guard,
		Registry:    r.Registry,
		Entities:    entities,
		Notifier:    notifier,
		Publisher:   bus,
		Metrics:     metrics.New(r.Prometheus),
		Tracer:      tracer,
		Clock:       r.Clock,
		Logger:      r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	return nil
}

// Close releases every resource in reverse creation order and logs failures.
func (r *Runtime) Close(ctx context.Context) {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.ErrorContext(ctx, "Failed to release resources", "error", err)
	}

	r.closers = nil
}
