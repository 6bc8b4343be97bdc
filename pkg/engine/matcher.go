package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
)

// Matcher finds the active definitions a domain event triggers. It has no side effects.
type Matcher struct {
	definitions persistence.DefinitionRepository
	registry    *registry.Registry
	logger      *slog.Logger
}

func NewMatcher(definitions persistence.DefinitionRepository, reg *registry.Registry, logger *slog.Logger) *Matcher {
	return &Matcher{
		definitions: definitions,
		registry:    reg,
		logger:      logger.With("module", "matcher"),
	}
}

// Match returns the active definitions whose trigger type equals the event type and whose
// trigger configuration accepts the event payload. Events of an unregistered type match nothing.
func (m *Matcher) Match(ctx context.Context, event *events.DomainEvent) ([]*models.WorkflowDefinition, error) {
	triggerType := models.TriggerType(event.Type)

	if !m.registry.HasTrigger(triggerType) {
		m.logger.DebugContext(ctx, "Ignoring event of unregistered type", "event_type", event.Type, "event_id", event.EventID)

		return nil, nil
	}

	candidates, err := m.definitions.GetActiveByTrigger(ctx, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions for %s: %w", triggerType, err)
	}

	payload := protocol.TriggerPayload(event.Payload)
	matched := make([]*models.WorkflowDefinition, 0, len(candidates))

	for _, definition := range candidates {
		if !definition.IsActive || definition.TriggerType != triggerType {
			continue
		}

		condition, err := m.registry.CreateTrigger(triggerType, definition.TriggerConfig)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping definition with unusable trigger config",
				"workflow_id", definition.ID,
				"trigger_type", triggerType,
				"error", err,
			)

			continue
		}

		if condition.Matches(payload) {
			matched = append(matched, definition)
		}
	}

	m.logger.DebugContext(ctx, "Matched event",
		"event_id", event.EventID,
		"event_type", event.Type,
		"candidates", len(candidates),
		"matches", len(matched),
	)

	return matched, nil
}
