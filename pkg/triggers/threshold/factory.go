package threshold

import (
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

var ErrThresholdRequired = errors.New("threshold is required and must be a number")

func NewTriggerFactory() *TriggerFactory {
	return &TriggerFactory{}
}

type TriggerFactory struct{}

func (f *TriggerFactory) ID() models.TriggerType {
	return models.TriggerCompletenessThreshold
}

func (f *TriggerFactory) Name() string {
	return "Completeness threshold"
}

func (f *TriggerFactory) Description() string {
	return "Fires when a completeness value crosses the threshold upwards"
}

func (f *TriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Completeness Threshold Trigger Configuration",
		"description": "Edge-triggered: fires only when old_value < threshold <= new_value",
		"properties": map[string]any{
			"threshold": map[string]any{
				"type":        "number",
				"description": "Percentage that must be crossed",
				"examples":    []int{50, 80, 100},
			},
		},
		"required": []string{"threshold"},
	}
}

func (f *TriggerFactory) Create(config map[string]any) (protocol.TriggerCondition, error) {
	condition, err := NewCondition(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create threshold trigger: %w", err)
	}

	return condition, nil
}
