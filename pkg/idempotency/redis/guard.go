// Package redis implements idempotency.Guard on top of Redis SET NX, so several workers
// sharing one Redis agree on which of them owns a dedup key or a step.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "cadence:dedup:"
	stepPrefix = "cadence:step:"
)

type Guard struct {
	client    redis.UniversalClient
	retention time.Duration
}

var _ idempotency.Guard = (*Guard)(nil)

func NewGuard(client redis.UniversalClient, retention time.Duration) *Guard {
	return &Guard{client: client, retention: retention}
}

// NewClient parses a redis:// URL and checks the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (g *Guard) Acquire(ctx context.Context, key models.DedupKey) (bool, error) {
	acquired, err := g.client.SetNX(ctx, keyPrefix+key.String(), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup key %s: %w", key, err)
	}

	return acquired, nil
}

func (g *Guard) Release(ctx context.Context, key models.DedupKey) error {
	var err error
	if g.retention <= 0 {
		err = g.client.Del(ctx, keyPrefix+key.String()).Err()
	} else {
		err = g.client.Expire(ctx, keyPrefix+key.String(), g.retention).Err()
	}

	if err != nil {
		return fmt.Errorf("failed to release dedup key %s: %w", key, err)
	}

	return nil
}

func (g *Guard) Forget(ctx context.Context, key models.DedupKey) error {
	if err := g.client.Del(ctx, keyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("failed to forget dedup key %s: %w", key, err)
	}

	return nil
}

func (g *Guard) ReleaseStep(ctx context.Context, runID string, index int) (bool, error) {
	first, err := g.client.SetNX(ctx, stepPrefix+idempotency.StepKey(runID, index), "1", idempotency.StepTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record step %d of run %s: %w", index, runID, err)
	}

	return first, nil
}
