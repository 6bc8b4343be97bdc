// Package registry holds the trigger and action vocabularies accepted by the engine.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownTriggerType is returned for trigger types nobody registered.
	ErrUnknownTriggerType = errors.New("unknown trigger type")

	// ErrUnknownActionType is returned for action types nobody registered.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrInvalidConfig is returned when a configuration fails its JSON schema.
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Registry struct {
	logger           *slog.Logger
	mu               sync.RWMutex
	actionFactories  map[models.ActionType]protocol.ActionFactory
	triggerFactories map[models.TriggerType]protocol.TriggerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log.With("module", "registry"),
		actionFactories:  make(map[models.ActionType]protocol.ActionFactory),
		triggerFactories: make(map[models.TriggerType]protocol.TriggerFactory),
	}
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
	r.logger.Debug("Registered action", "action_type", actionFactory.ID())
}

func (r *Registry) RegisterTrigger(triggerFactory protocol.TriggerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggerFactories[triggerFactory.ID()] = triggerFactory
	r.logger.Debug("Registered trigger", "trigger_type", triggerFactory.ID())
}

func (r *Registry) CreateAction(actionType models.ActionType, config map[string]any) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	return factory.Create(config)
}

func (r *Registry) CreateTrigger(triggerType models.TriggerType, config map[string]any) (protocol.TriggerCondition, error) {
	r.mu.RLock()
	factory, ok := r.triggerFactories[triggerType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}

	return factory.Create(config)
}

func (r *Registry) HasTrigger(triggerType models.TriggerType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.triggerFactories[triggerType]

	return ok
}

func (r *Registry) HasAction(actionType models.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actionFactories[actionType]

	return ok
}

// TriggerTypes returns the registered trigger types in lexical order.
func (r *Registry) TriggerTypes() []models.TriggerType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.TriggerType, 0, len(r.triggerFactories))
	for t := range r.triggerFactories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// ActionTypes returns the registered action types in lexical order.
func (r *Registry) ActionTypes() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.actionFactories))
	for t := range r.actionFactories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// ValidateTriggerConfig checks a trigger configuration against the factory schema
// and makes sure the factory can build a condition from it.
func (r *Registry) ValidateTriggerConfig(triggerType models.TriggerType, config map[string]any) error {
	r.mu.RLock()
	factory, ok := r.triggerFactories[triggerType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}

	if err := validateJSONSchema(config, factory.Schema()); err != nil {
		return fmt.Errorf("trigger %s: %w", triggerType, err)
	}

	if _, err := factory.Create(config); err != nil {
		return fmt.Errorf("%w: trigger %s: %w", ErrInvalidConfig, triggerType, err)
	}

	return nil
}

// ValidateActionConfig checks an action configuration against the factory schema
// and makes sure the factory can build an action from it.
func (r *Registry) ValidateActionConfig(actionType models.ActionType, config map[string]any) error {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	if err := validateJSONSchema(config, factory.Schema()); err != nil {
		return fmt.Errorf("action %s: %w", actionType, err)
	}

	if _, err := factory.Create(config); err != nil {
		return fmt.Errorf("%w: action %s: %w", ErrInvalidConfig, actionType, err)
	}

	return nil
}

func validateJSONSchema(data map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
	}

	return nil
}
