// Package createtask implements the create_task action: it stores a task record in the
// entity store that points back at the run's target entity.
package createtask

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/template"
)

const (
	DefaultEntityType = "task"
	DefaultPriority   = "normal"
)

var ErrTitleRequired = errors.New("create_task: title is required")

type Action struct {
	Title       string
	Description string
	Priority    string
	EntityType  string
}

func NewAction(config map[string]any) (*Action, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, ErrTitleRequired
	}

	description, _ := config["description"].(string)

	priority, _ := config["priority"].(string)
	if priority == "" {
		priority = DefaultPriority
	}

	entityType, _ := config["entity_type"].(string)
	if entityType == "" {
		entityType = DefaultEntityType
	}

	return &Action{
		Title:       title,
		Description: description,
		Priority:    priority,
		EntityType:  entityType,
	}, nil
}

func (a *Action) Execute(ctx context.Context, step protocol.StepContext) (map[string]any, error) {
	logger := step.Logger.With("action_type", "create_task")

	data := template.Data{
		EntityID:   step.EntityID,
		EntityType: step.EntityType,
		Event:      step.EventPayload,
	}

	fields := map[string]any{
		"title":              template.Render(a.Title, data),
		"description":        template.Render(a.Description, data),
		"priority":           a.Priority,
		"target_entity_id":   step.EntityID,
		"target_entity_type": step.EntityType,
		"workflow_run_id":    step.RunID,
	}

	task, err := step.Entities.Create(ctx, a.EntityType, fields)
	if err != nil {
		return nil, fmt.Errorf("create_task: %w", err)
	}

	logger.Info("Task created", "task_id", task.ID)

	return map[string]any{
		"task_id": task.ID,
		"title":   fields["title"],
	}, nil
}
