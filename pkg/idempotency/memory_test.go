package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = models.DedupKey{DefinitionID: "wf-1", EntityID: "S1", EventID: "E1"}

func TestMemoryGuard_AcquireOnce(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(clockwork.NewFakeClock(), 0)

	acquired, err := guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, acquired)

	other := testKey
	other.EventID = "E2"

	acquired, err = guard.Acquire(ctx, other)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryGuard_ReleaseWithoutRetention(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(clockwork.NewFakeClock(), 0)

	_, _ = guard.Acquire(ctx, testKey)
	require.NoError(t, guard.Release(ctx, testKey))

	acquired, err := guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryGuard_ReleaseWithRetention(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	guard := NewMemoryGuard(clock, time.Hour)

	_, _ = guard.Acquire(ctx, testKey)
	require.NoError(t, guard.Release(ctx, testKey))

	clock.Advance(59 * time.Minute)

	acquired, err := guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, acquired, "key is retained after the run finished")

	clock.Advance(time.Minute)

	acquired, err = guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryGuard_ForgetIgnoresRetention(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(clockwork.NewFakeClock(), time.Hour)

	_, _ = guard.Acquire(ctx, testKey)
	require.NoError(t, guard.Forget(ctx, testKey))

	acquired, err := guard.Acquire(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryGuard_ReleaseStep(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(clockwork.NewFakeClock(), 0)

	first, err := guard.ReleaseStep(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = guard.ReleaseStep(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.False(t, first)

	first, err = guard.ReleaseStep(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMemoryGuard_StepLedgerIsBounded(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	guard := NewMemoryGuard(clock, 0)

	_, err := guard.ReleaseStep(ctx, "run-1", 0)
	require.NoError(t, err)

	clock.Advance(StepTTL / 2)

	_, err = guard.ReleaseStep(ctx, "run-2", 0)
	require.NoError(t, err)

	clock.Advance(StepTTL / 2)
	require.NoError(t, guard.Release(ctx, testKey))

	guard.mu.Lock()
	assert.Len(t, guard.steps, 1)
	assert.Contains(t, guard.steps, StepKey("run-2", 0))
	guard.mu.Unlock()

	first, err := guard.ReleaseStep(ctx, "run-2", 0)
	require.NoError(t, err)
	assert.False(t, first)

	first, err = guard.ReleaseStep(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMemoryGuard_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(clockwork.NewFakeClock(), 0)

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if ok, _ := guard.Acquire(ctx, testKey); ok {
				won.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}
