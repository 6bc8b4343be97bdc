package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/jonboulle/clockwork"
)

// MemoryGuard is a process-local Guard. It is exact within one process and is only
// suitable for single-worker deployments and tests.
type MemoryGuard struct {
	clock     clockwork.Clock
	retention time.Duration

	mu    sync.Mutex
	keys  map[string]*time.Time
	steps map[string]time.Time
}

func NewMemoryGuard(clock clockwork.Clock, retention time.Duration) *MemoryGuard {
	return &MemoryGuard{
		clock:     clock,
		retention: retention,
		keys:      make(map[string]*time.Time),
		steps:     make(map[string]time.Time),
	}
}

func (g *MemoryGuard) Acquire(_ context.Context, key models.DedupKey) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if expiresAt, held := g.keys[key.String()]; held {
		if expiresAt == nil || g.clock.Now().Before(*expiresAt) {
			return false, nil
		}
	}

	g.keys[key.String()] = nil

	return true, nil
}

// Release also drops step ledger entries older than StepTTL, so the ledger stays
// bounded by the runs of the last StepTTL.
func (g *MemoryGuard) Release(_ context.Context, key models.DedupKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneSteps()

	if g.retention <= 0 {
		delete(g.keys, key.String())

		return nil
	}

	expiresAt := g.clock.Now().Add(g.retention)
	g.keys[key.String()] = &expiresAt

	return nil
}

func (g *MemoryGuard) Forget(_ context.Context, key models.DedupKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.keys, key.String())

	return nil
}

// ReleaseStep treats an entry older than StepTTL as never recorded, like the Redis key
// expiring.
func (g *MemoryGuard) ReleaseStep(_ context.Context, runID string, index int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()

	key := StepKey(runID, index)
	if executedAt, done := g.steps[key]; done && now.Sub(executedAt) < StepTTL {
		return false, nil
	}

	g.steps[key] = now

	return true, nil
}

func (g *MemoryGuard) pruneSteps() {
	cutoff := g.clock.Now().Add(-StepTTL)

	for key, executedAt := range g.steps {
		if !executedAt.After(cutoff) {
			delete(g.steps, key)
		}
	}
}

// StepKey is the ledger key of one run step.
func StepKey(runID string, index int) string {
	return fmt.Sprintf("%s#%d", runID, index)
}
