// Package template provides placeholder substitution for message subjects and bodies.
//
// Placeholders have the form {{path}}. A path resolves against the target entity:
// a bare name reads an entity field, dotted names walk nested maps, entity.id and
// entity.type read the record identity, and event.<key> reads the triggering event
// payload. Placeholders that do not resolve are left in the output verbatim.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Data is the lookup scope for placeholder resolution.
type Data struct {
	EntityID   string
	EntityType string
	Fields     map[string]any
	Event      map[string]any
}

// Render substitutes every resolvable placeholder in input. It never fails.
func Render(input string, data Data) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := data.lookup(path)
		if !ok {
			return match
		}

		return value
	})
}

func (d Data) lookup(path string) (string, bool) {
	switch path {
	case "entity.id":
		return d.EntityID, d.EntityID != ""
	case "entity.type":
		return d.EntityType, d.EntityType != ""
	}

	if rest, found := strings.CutPrefix(path, "event."); found {
		return walk(d.Event, strings.Split(rest, "."))
	}

	if rest, found := strings.CutPrefix(path, "entity."); found {
		if value, ok := walk(d.Fields, strings.Split(rest, ".")); ok {
			return value, true
		}
	}

	return walk(d.Fields, strings.Split(path, "."))
}

func walk(scope map[string]any, parts []string) (string, bool) {
	var current any = scope

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}

		current, ok = m[part]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case nil:
		return "", false
	case map[string]any, []any:
		return "", false
	case string:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}

		return fmt.Sprintf("%v", v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
