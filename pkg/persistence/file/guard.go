package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/models"
	"github.com/jonboulle/clockwork"
)

const (
	guardDir      = "guard"
	dedupKeysDir  = "dedup"
	stepLedgerDir = "steps"
)

// Guard implements idempotency.Guard with one JSON file per dedup key and per executed
// step, stored next to the runs so both survive a restart. Keys are created with an
// atomic link, the mutex orders the read-modify-write paths within the process.
type Guard struct {
	dedupDir  string
	stepsDir  string
	clock     clockwork.Clock
	retention time.Duration

	mu sync.Mutex
}

var _ idempotency.Guard = (*Guard)(nil)

type dedupRecord struct {
	Key        models.DedupKey `json:"key"`
	AcquiredAt time.Time       `json:"acquired_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

type stepRecord struct {
	RunID      string    `json:"run_id"`
	StepIndex  int       `json:"step_index"`
	ExecutedAt time.Time `json:"executed_at"`
}

func NewGuard(root string, clock clockwork.Clock, retention time.Duration) *Guard {
	base := filepath.Join(root, guardDir)

	return &Guard{
		dedupDir:  filepath.Join(base, dedupKeysDir),
		stepsDir:  filepath.Join(base, stepLedgerDir),
		clock:     clock,
		retention: retention,
	}
}

// dedupFile names the key by its hash: entity and event ids may hold path separators.
func dedupFile(key models.DedupKey) string {
	sum := sha256.Sum256([]byte(key.String()))

	return hex.EncodeToString(sum[:])
}

// Acquire creates the key, or takes over a key whose retention has elapsed.
func (g *Guard) Acquire(_ context.Context, key models.DedupKey) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC()
	id := dedupFile(key)
	record := dedupRecord{Key: key, AcquiredAt: now}

	created, err := createJSON(g.dedupDir, id, record)
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	if created {
		return true, nil
	}

	var held dedupRecord
	if err := readJSON(g.dedupDir, id, &held); err != nil {
		return false, fmt.Errorf("failed to read dedup key %s: %w", key, err)
	}

	if held.ExpiresAt == nil || now.Before(*held.ExpiresAt) {
		return false, nil
	}

	if err := writeJSON(g.dedupDir, id, record); err != nil {
		return false, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	return true, nil
}

// Release keeps the key for the retention, or removes it when the retention is zero.
// Step records older than idempotency.StepTTL are pruned on the way.
func (g *Guard) Release(_ context.Context, key models.DedupKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.pruneSteps(); err != nil {
		return err
	}

	id := dedupFile(key)

	if g.retention <= 0 {
		return g.remove(key, id)
	}

	var held dedupRecord
	if err := readJSON(g.dedupDir, id, &held); err != nil {
		if isNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to release dedup key %s: %w", key, err)
	}

	expiresAt := g.clock.Now().UTC().Add(g.retention)
	held.ExpiresAt = &expiresAt

	if err := writeJSON(g.dedupDir, id, held); err != nil {
		return fmt.Errorf("failed to release dedup key %s: %w", key, err)
	}

	return nil
}

func (g *Guard) Forget(_ context.Context, key models.DedupKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.remove(key, dedupFile(key))
}

func (g *Guard) remove(key models.DedupKey, id string) error {
	if err := removeJSON(g.dedupDir, id); err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to remove dedup key %s: %w", key, err)
	}

	return nil
}

// ReleaseStep records the step once. A record older than idempotency.StepTTL counts as
// absent, matching the other guards.
func (g *Guard) ReleaseStep(_ context.Context, runID string, index int) (bool, error) {
	if !validID(runID) {
		return false, fmt.Errorf("failed to record step %d: invalid run identifier %q", index, runID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC()
	id := runID + "." + strconv.Itoa(index)
	record := stepRecord{RunID: runID, StepIndex: index, ExecutedAt: now}

	created, err := createJSON(g.stepsDir, id, record)
	if err != nil {
		return false, fmt.Errorf("failed to record step %d of run %s: %w", index, runID, err)
	}

	if created {
		return true, nil
	}

	var recorded stepRecord
	if err := readJSON(g.stepsDir, id, &recorded); err != nil {
		return false, fmt.Errorf("failed to read step %d of run %s: %w", index, runID, err)
	}

	if now.Sub(recorded.ExecutedAt) < idempotency.StepTTL {
		return false, nil
	}

	if err := writeJSON(g.stepsDir, id, record); err != nil {
		return false, fmt.Errorf("failed to record step %d of run %s: %w", index, runID, err)
	}

	return true, nil
}

func (g *Guard) pruneSteps() error {
	ids, err := listIDs(g.stepsDir)
	if err != nil {
		return err
	}

	cutoff := g.clock.Now().UTC().Add(-idempotency.StepTTL)

	for _, id := range ids {
		var recorded stepRecord
		if err := readJSON(g.stepsDir, id, &recorded); err != nil {
			continue
		}

		if recorded.ExecutedAt.After(cutoff) {
			continue
		}

		if err := removeJSON(g.stepsDir, id); err != nil && !isNotExist(err) {
			return fmt.Errorf("failed to prune step record %s: %w", id, err)
		}
	}

	return nil
}
