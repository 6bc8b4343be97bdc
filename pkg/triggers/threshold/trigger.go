// Package threshold implements the edge-triggered completeness_threshold trigger.
package threshold

import (
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
)

type Condition struct {
	Threshold float64
}

func NewCondition(config map[string]any) (*Condition, error) {
	raw, ok := config["threshold"]
	if !ok {
		return nil, ErrThresholdRequired
	}

	threshold, ok := events.AsNumber(raw)
	if !ok {
		return nil, ErrThresholdRequired
	}

	return &Condition{Threshold: threshold}, nil
}

// Matches only on the upward crossing. Both old_value and new_value must be present.
func (c *Condition) Matches(payload protocol.TriggerPayload) bool {
	oldValue, ok := events.AsNumber(payload[events.PayloadOldValue])
	if !ok {
		return false
	}

	newValue, ok := events.AsNumber(payload[events.PayloadNewValue])
	if !ok {
		return false
	}

	return newValue >= c.Threshold && oldValue < c.Threshold
}
