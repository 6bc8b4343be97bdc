// Package statuschanged implements the status_changed trigger.
package statuschanged

import (
	"fmt"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
)

const defaultField = "status"

type Condition struct {
	Field string
	From  string
	To    string
}

func NewCondition(config map[string]any) *Condition {
	return &Condition{
		Field: stringValue(config["field"]),
		From:  stringValue(config["from"]),
		To:    stringValue(config["to"]),
	}
}

func (c *Condition) Matches(payload protocol.TriggerPayload) bool {
	if !c.matchesField(payload) {
		return false
	}

	if c.To != "" && stringValue(payload[events.PayloadNewStatus]) != c.To {
		return false
	}

	if c.From != "" && stringValue(payload[events.PayloadOldStatus]) != c.From {
		return false
	}

	return true
}

// matchesField accepts events without a field only when the condition targets the default field.
func (c *Condition) matchesField(payload protocol.TriggerPayload) bool {
	if c.Field == "" {
		return true
	}

	field := stringValue(payload[events.PayloadField])
	if field == "" {
		return c.Field == defaultField
	}

	return field == c.Field
}

func stringValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		if typed == "*" || typed == "any" {
			return ""
		}

		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}
