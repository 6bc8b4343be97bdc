// Package memory is an in-process protocol.EntityStore used by the worker's local mode
// and by tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	entities map[string]*protocol.Entity
	order    []string
}

var _ protocol.EntityStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{entities: make(map[string]*protocol.Entity)}
}

// Put inserts or replaces an entity with a caller-chosen id.
func (s *Store) Put(entity *protocol.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entity.ID]; !exists {
		s.order = append(s.order, entity.ID)
	}

	s.entities[entity.ID] = clone(entity)
}

func (s *Store) Create(_ context.Context, entityType string, fields map[string]any) (*protocol.Entity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entity ID: %w", err)
	}

	entity := &protocol.Entity{ID: id.String(), Type: entityType, Fields: models.CloneMap(fields)}
	s.Put(entity)

	return clone(entity), nil
}

func (s *Store) Update(_ context.Context, id string, fields map[string]any) (*protocol.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrEntityNotFound, id)
	}

	if entity.Fields == nil {
		entity.Fields = make(map[string]any, len(fields))
	}

	maps.Copy(entity.Fields, models.CloneMap(fields))

	return clone(entity), nil
}

func (s *Store) Get(_ context.Context, id string) (*protocol.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrEntityNotFound, id)
	}

	return clone(entity), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return fmt.Errorf("%w: %s", protocol.ErrEntityNotFound, id)
	}

	delete(s.entities, id)

	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	return nil
}

// List returns entities of entityType whose fields equal every filter value, in insertion order.
func (s *Store) List(_ context.Context, entityType string, filter map[string]any) ([]*protocol.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*protocol.Entity, 0)

	for _, id := range s.order {
		entity := s.entities[id]
		if entityType != "" && entity.Type != entityType {
			continue
		}

		if matchesFilter(entity.Fields, filter) {
			result = append(result, clone(entity))
		}
	}

	return result, nil
}

func matchesFilter(fields, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := fields[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}

	return true
}

func clone(entity *protocol.Entity) *protocol.Entity {
	return &protocol.Entity{ID: entity.ID, Type: entity.Type, Fields: models.CloneMap(entity.Fields)}
}
