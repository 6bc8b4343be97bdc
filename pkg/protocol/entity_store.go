// Package protocol defines the contracts between the engine and its collaborators.
package protocol

import (
	"context"
	"errors"
)

var (
	// ErrEntityNotFound is returned by an EntityStore when the record does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnavailable marks a collaborator failure that may succeed on retry.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Entity is an arbitrary typed record owned by the host application.
type Entity struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// EntityStore is the host's record storage.
type EntityStore interface {
	Create(ctx context.Context, entityType string, fields map[string]any) (*Entity, error)
	Update(ctx context.Context, id string, fields map[string]any) (*Entity, error)
	Get(ctx context.Context, id string) (*Entity, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, entityType string, filter map[string]any) ([]*Entity, error)
}
