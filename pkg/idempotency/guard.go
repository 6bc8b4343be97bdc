// Package idempotency guarantees at most one in-flight run per dedup key and at most
// one execution per run step.
package idempotency

import (
	"context"
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// StepTTL bounds how long an entry of the step ledger is kept. It must outlive any run
// that can still be resumed.
const StepTTL = 30 * 24 * time.Hour

// Guard is the atomic check-and-set used by the scheduler and the executor.
//
// Acquire reports whether the caller now holds key. Release is called once the run
// owning key turns terminal; implementations keep the key held for their configured
// retention so late redeliveries of the same event are still rejected, and free it at
// once when the retention is zero. Forget frees key immediately regardless of retention;
// the scheduler calls it when run creation fails after Acquire. ReleaseStep records the execution of one step and
// reports whether this was the first time it was recorded.
type Guard interface {
	Acquire(ctx context.Context, key models.DedupKey) (bool, error)
	Release(ctx context.Context, key models.DedupKey) error
	Forget(ctx context.Context, key models.DedupKey) error
	ReleaseStep(ctx context.Context, runID string, index int) (bool, error)
}
