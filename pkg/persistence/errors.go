// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrRunAlreadyExists indicates a run with the same identifier is already stored.
	ErrRunAlreadyExists = errors.New("workflow run already exists")

	// ErrVersionConflict indicates a run was modified since it was read.
	ErrVersionConflict = errors.New("workflow run version conflict")
)

// DefinitionError wraps definition-related errors with additional context.
type DefinitionError struct {
	Op           string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	DefinitionID string
	Err          error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow definition %s: %v", e.Op, e.DefinitionID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for definition errors.
func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a new definition error with context.
func NewDefinitionError(op, definitionID string, err error) *DefinitionError {
	return &DefinitionError{
		Op:           op,
		DefinitionID: definitionID,
		Err:          err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op      string
	RunID   string
	Version int64 // Version the caller expected, if applicable
	Err     error
}

func (e *RunError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s operation failed for workflow run %s at version %d: %v", e.Op, e.RunID, e.Version, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// NewVersionConflictError reports a lost compare-and-swap on a run.
func NewVersionConflictError(op, runID string, version int64) *RunError {
	return &RunError{
		Op:      op,
		RunID:   runID,
		Version: version,
		Err:     ErrVersionConflict,
	}
}

// IsDefinitionNotFound checks if an error indicates a workflow definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsRunNotFound checks if an error indicates a workflow run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
