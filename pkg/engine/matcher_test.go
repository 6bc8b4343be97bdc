package engine_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir()).DefinitionRepository()

	notify := []models.ActionStep{{ActionType: models.ActionSendMessage, Config: map[string]any{"body": "hi"}}}
	definitions := []*models.WorkflowDefinition{
		{ID: "rejected", Name: "Any to rejected", TriggerType: models.TriggerStatusChanged, TriggerConfig: map[string]any{"to": "rejected"}, IsActive: true, Actions: notify},
		{ID: "review-to-rejected", Name: "Review to rejected", TriggerType: models.TriggerStatusChanged, TriggerConfig: map[string]any{"from": "review", "to": "rejected"}, IsActive: true, Actions: notify},
		{ID: "any-change", Name: "Any change", TriggerType: models.TriggerStatusChanged, IsActive: true, Actions: notify},
		{ID: "inactive", Name: "Inactive", TriggerType: models.TriggerStatusChanged, IsActive: false, Actions: notify},
		{ID: "welcome", Name: "Welcome", TriggerType: models.TriggerProfileCreated, IsActive: true, Actions: notify},
		{ID: "broken", Name: "Broken threshold", TriggerType: models.TriggerCompletenessThreshold, IsActive: true, Actions: notify},
		{ID: "half", Name: "Half complete", TriggerType: models.TriggerCompletenessThreshold, TriggerConfig: map[string]any{"threshold": 50}, IsActive: true, Actions: notify},
	}

	for _, definition := range definitions {
		require.NoError(t, store.Save(ctx, definition))
	}

	matcher := engine.NewMatcher(store, newRegistry(), slog.Default())

	tests := []struct {
		name    string
		event   *events.DomainEvent
		matches []string
	}{
		{
			name: "status change to rejected from review",
			event: events.NewDomainEvent("E1", string(models.TriggerStatusChanged), "A1", "application",
				map[string]any{events.PayloadOldStatus: "review", events.PayloadNewStatus: "rejected"}),
			matches: []string{"rejected", "review-to-rejected", "any-change"},
		},
		{
			name: "status change to rejected from draft",
			event: events.NewDomainEvent("E2", string(models.TriggerStatusChanged), "A1", "application",
				map[string]any{events.PayloadOldStatus: "draft", events.PayloadNewStatus: "rejected"}),
			matches: []string{"rejected", "any-change"},
		},
		{
			name: "status change to approved",
			event: events.NewDomainEvent("E3", string(models.TriggerStatusChanged), "A1", "application",
				map[string]any{events.PayloadOldStatus: "review", events.PayloadNewStatus: "approved"}),
			matches: []string{"any-change"},
		},
		{
			name:    "profile created",
			event:   events.NewDomainEvent("E4", string(models.TriggerProfileCreated), "S1", "student", nil),
			matches: []string{"welcome"},
		},
		{
			name: "threshold crossing skips the unusable definition",
			event: events.NewDomainEvent("E5", string(models.TriggerCompletenessThreshold), "S1", "student",
				map[string]any{events.PayloadOldValue: 10, events.PayloadNewValue: 90}),
			matches: []string{"half"},
		},
		{
			name:    "unregistered type",
			event:   events.NewDomainEvent("E6", "invoice_paid", "I1", "invoice", nil),
			matches: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := matcher.Match(ctx, tt.event)
			require.NoError(t, err)

			ids := make([]string, 0, len(matched))
			for _, definition := range matched {
				ids = append(ids, definition.ID)
			}

			assert.ElementsMatch(t, tt.matches, ids)
		})
	}
}
