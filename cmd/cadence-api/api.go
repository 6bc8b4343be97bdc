// Package main provides the Cadence API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/services"
	"github.com/dukex/cadence/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime) *API {
	return &API{
		logger:   logger,
		runtime:  runtime,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	definitions := services.NewDefinitions(
		a.runtime.Persistence.DefinitionRepository(),
		a.runtime.Registry,
		a.runtime.Clock,
		a.logger,
	)
	runs := services.NewRuns(a.runtime.Persistence, a.runtime.Engine, a.logger)

	handlers := web.NewAPIHandlers(definitions, runs, a.runtime.Engine, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, handlers.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.runtime.Prometheus, promhttp.HandlerOpts{})))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	app.Post("/events", handlers.SubmitEvent)
	app.Post("/sweep", handlers.Sweep)

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Patch("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/deactivate", handlers.DeactivateDefinition)

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/cancel", handlers.CancelRun)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down Cadence API")

		if err := app.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	}
}
