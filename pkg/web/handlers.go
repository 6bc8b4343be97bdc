// Package web provides HTTP handlers for event intake and workflow administration.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of the workflow engine the HTTP surface drives directly.
type Engine interface {
	SubmitEvent(ctx context.Context, event *events.DomainEvent) (engine.SubmitResult, error)
	SweepNow(ctx context.Context) (engine.SweepResult, error)
}

type APIHandlers struct {
	definitions *services.Definitions
	runs        *services.Runs
	engine      Engine
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	definitions *services.Definitions,
	runs *services.Runs,
	eng Engine,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		runs:        runs,
		engine:      eng,
		validator:   validator,
		logger:      logger,
	}
}

// requestContext carries a logger tagged with the request line to the layers below.
func (h *APIHandlers) requestContext(c fiber.Ctx) context.Context {
	return log.WithLogger(c.Context(), h.logger.With(
		"http_method", c.Method(),
		"http_path", c.Path(),
	))
}

func (h *APIHandlers) SubmitEvent(c fiber.Ctx) error {
	var event events.DomainEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	result, err := h.engine.SubmitEvent(h.requestContext(c), &event)
	if err != nil {
		if errors.Is(err, events.ErrInvalidEventData) {
			return badRequest(c, err.Error())
		}

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(newSubmitEventResponse(result))
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	req := services.ListDefinitionsRequest{
		TriggerType: models.TriggerType(c.Query("trigger_type")),
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		req.ActiveOnly = active
	}

	definitions, err := h.definitions.List(h.requestContext(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": definitions,
		"total_count": len(definitions),
	})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.definitions.Get(h.requestContext(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Create(h.requestContext(c), req.Definition())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	var req UpdateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.Update(h.requestContext(c), c.Params("id"), req.Patch())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeactivateDefinition(c fiber.Ctx) error {
	deactivated, err := h.definitions.Deactivate(h.requestContext(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deactivated)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	if err := h.definitions.Delete(h.requestContext(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	req := services.ListRunsRequest{
		DefinitionID: c.Query("definition_id"),
		EntityID:     c.Query("entity_id"),
		Status:       models.RunStatus(c.Query("status")),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		req.Limit = limit
	}

	runs, err := h.runs.List(h.requestContext(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runs.Get(h.requestContext(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	run, err := h.runs.Cancel(h.requestContext(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) Sweep(c fiber.Ctx) error {
	result, err := h.engine.SweepNow(h.requestContext(c))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) Ready(c fiber.Ctx) error {
	repositoryCheck, ok := h.runs.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
