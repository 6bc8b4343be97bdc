package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

var (
	// ErrDuplicateRun is the expected rejection when the dedup key is already held.
	ErrDuplicateRun = errors.New("duplicate run")

	// ErrRunNotClaimable is returned by Advance when another worker holds the run or it is not due.
	ErrRunNotClaimable = errors.New("run is not claimable")

	// ErrStepOutcomeUnknown marks a step that was started before but never recorded.
	ErrStepOutcomeUnknown = errors.New("step outcome unknown")

	// ErrRunTerminal is returned when cancelling a run that already finished.
	ErrRunTerminal = errors.New("run is terminal")
)

// TransientError is a step failure that may succeed on retry.
type TransientError struct {
	ActionType models.ActionType
	StepIndex  int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in step %d (%s): %v", e.StepIndex, e.ActionType, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError is a step failure that is never retried.
type PermanentError struct {
	ActionType models.ActionType
	StepIndex  int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure in step %d (%s): %v", e.StepIndex, e.ActionType, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	return errors.Is(err, protocol.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// classify wraps a raw step error as transient or permanent.
func classify(step models.ActionStep, err error) error {
	var (
		transient *TransientError
		permanent *PermanentError
	)

	if errors.As(err, &transient) || errors.As(err, &permanent) {
		return err
	}

	if IsTransient(err) {
		return &TransientError{ActionType: step.ActionType, StepIndex: step.Index, Err: err}
	}

	return &PermanentError{ActionType: step.ActionType, StepIndex: step.Index, Err: err}
}
