package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Config holds the engine tunables.
type Config struct {
	// WorkerID is written to claimed runs; it should be unique per process.
	WorkerID string
	// StepTimeout bounds one attempt of one action step.
	StepTimeout time.Duration
	// MaxAttempts is the total number of tries for a step failing transiently.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the exponential wait between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ClaimLease is how long a running claim is honored before the sweep may take it over.
	ClaimLease time.Duration
	// DedupRetention keeps a dedup key held after its run turned terminal.
	DedupRetention time.Duration
	// SweepSchedule is a robfig/cron expression, such as "@every 1m".
	SweepSchedule string
	// SweepConcurrency bounds how many runs one sweep advances at once.
	SweepConcurrency int
	// SweepBatchSize caps the runs fetched by one sweep.
	SweepBatchSize int
}

func DefaultConfig() Config {
	return Config{
		WorkerID:         "cadence-worker",
		StepTimeout:      30 * time.Second,
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		ClaimLease:       5 * time.Minute,
		DedupRetention:   7 * 24 * time.Hour,
		SweepSchedule:    "@every 1m",
		SweepConcurrency: 8,
		SweepBatchSize:   500,
	}
}

// MaxStepDuration is the longest one step can hold a claim: every attempt running into
// the step timeout, with the longest backoff between attempts.
func (c Config) MaxStepDuration() time.Duration {
	attempts := time.Duration(max(c.MaxAttempts, 1))

	return attempts*c.StepTimeout + (attempts-1)*c.MaxBackoff
}

func (c Config) Validate() error {
	switch {
	case c.WorkerID == "":
		return fmt.Errorf("%w: worker id is required", ErrInvalidConfig)
	case c.StepTimeout <= 0:
		return fmt.Errorf("%w: step timeout must be positive", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	case c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff:
		return fmt.Errorf("%w: backoff must satisfy 0 < initial <= max", ErrInvalidConfig)
	case c.ClaimLease <= c.MaxStepDuration():
		return fmt.Errorf("%w: claim lease %s must be longer than the worst-case step duration %s",
			ErrInvalidConfig, c.ClaimLease, c.MaxStepDuration())
	case c.DedupRetention < 0:
		return fmt.Errorf("%w: dedup retention must not be negative", ErrInvalidConfig)
	case c.SweepConcurrency < 1:
		return fmt.Errorf("%w: sweep concurrency must be at least 1", ErrInvalidConfig)
	case c.SweepBatchSize < 1:
		return fmt.Errorf("%w: sweep batch size must be at least 1", ErrInvalidConfig)
	}

	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("%w: sweep schedule %q: %w", ErrInvalidConfig, c.SweepSchedule, err)
	}

	return nil
}
