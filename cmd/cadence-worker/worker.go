// Package main provides the Cadence worker: it turns domain events from the bus into
// runs and resumes waiting runs on the sweep schedule.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/events"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type Worker struct {
	logger  *slog.Logger
	runtime *cmd.Runtime
}

func NewWorker(logger *slog.Logger, runtime *cmd.Runtime) *Worker {
	return &Worker{logger: logger, runtime: runtime}
}

// Subscribe registers the domain event handler and starts consuming.
func (w *Worker) Subscribe(ctx context.Context) error {
	if err := w.runtime.EventBus.Handle(events.DomainEventReceived, w.runtime.Engine.HandleDomainEvent); err != nil {
		return fmt.Errorf("failed to register domain event handler: %w", err)
	}

	if err := w.runtime.EventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to domain events: %w", err)
	}

	w.logger.InfoContext(ctx, "Subscribed to domain events", "topic", events.TopicFor(events.DomainEventReceived))

	return nil
}

func (w *Worker) App() *fiber.App {
	app := fiber.New()
	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(w.runtime.Prometheus, promhttp.HandlerOpts{})))

	return app
}

// Start consumes events and sweeps until ctx is done.
func (w *Worker) Start(ctx context.Context, port int) error {
	if err := w.Subscribe(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.runtime.Engine.Start(ctx)
	})

	if port > 0 {
		app := w.App()

		g.Go(func() error {
			return app.Listen(":" + strconv.Itoa(port))
		})

		g.Go(func() error {
			<-ctx.Done()

			return app.Shutdown()
		})
	}

	err := g.Wait()

	w.logger.Info("Cadence Worker stopped")

	return err
}
