// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidStatus      = errors.New("invalid run status")
	ErrInvalidTrigger     = errors.New("invalid trigger")
	ErrInvalidAction      = errors.New("invalid action")
	ErrDefinitionNil      = errors.New("workflow definition cannot be nil")
	ErrDefinitionIDNeeded = errors.New("workflow definition id is required")

	// Business Logic Conflicts (409 Conflict).
	ErrRunTerminal = engine.ErrRunTerminal
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrDefinitionNil) ||
		errors.Is(err, ErrDefinitionIDNeeded)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRunTerminal) ||
		errors.Is(err, persistence.ErrVersionConflict)
}

// IsNotFound checks if an error means the requested definition or run does not exist.
func IsNotFound(err error) bool {
	return persistence.IsDefinitionNotFound(err) || persistence.IsRunNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
