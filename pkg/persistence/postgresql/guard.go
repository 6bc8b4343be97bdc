package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/models"
	"github.com/jonboulle/clockwork"
)

// Guard implements idempotency.Guard with conditional inserts, so every worker sharing
// the database agrees on key ownership.
type Guard struct {
	db        *sql.DB
	clock     clockwork.Clock
	retention time.Duration
}

var _ idempotency.Guard = (*Guard)(nil)

func NewGuard(db *sql.DB, clock clockwork.Clock, retention time.Duration) *Guard {
	return &Guard{db: db, clock: clock, retention: retention}
}

// Acquire inserts the key, or takes over a key whose retention has elapsed.
func (g *Guard) Acquire(ctx context.Context, key models.DedupKey) (bool, error) {
	now := g.clock.Now().UTC()

	result, err := g.db.ExecContext(ctx, `
		INSERT INTO run_dedup_keys (dedup_key, acquired_at, expires_at)
		VALUES ($1, $2, NULL)
		ON CONFLICT (dedup_key) DO UPDATE SET
			acquired_at = EXCLUDED.acquired_at
		  , expires_at = NULL
		WHERE run_dedup_keys.expires_at IS NOT NULL AND run_dedup_keys.expires_at <= $2
	`, key.String(), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	return affected == 1, nil
}

func (g *Guard) Release(ctx context.Context, key models.DedupKey) error {
	var err error
	if g.retention <= 0 {
		_, err = g.db.ExecContext(ctx, `DELETE FROM run_dedup_keys WHERE dedup_key = $1`, key.String())
	} else {
		_, err = g.db.ExecContext(ctx, `UPDATE run_dedup_keys SET expires_at = $2 WHERE dedup_key = $1`,
			key.String(), g.clock.Now().UTC().Add(g.retention))
	}

	if err != nil {
		return fmt.Errorf("failed to release dedup key %s: %w", key, err)
	}

	return nil
}

func (g *Guard) Forget(ctx context.Context, key models.DedupKey) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM run_dedup_keys WHERE dedup_key = $1`, key.String()); err != nil {
		return fmt.Errorf("failed to forget dedup key %s: %w", key, err)
	}

	return nil
}

func (g *Guard) ReleaseStep(ctx context.Context, runID string, index int) (bool, error) {
	result, err := g.db.ExecContext(ctx, `
		INSERT INTO step_executions (run_id, step_index, executed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, step_index) DO NOTHING
	`, runID, index, g.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record step %d of run %s: %w", index, runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record step %d of run %s: %w", index, runID, err)
	}

	return affected == 1, nil
}
