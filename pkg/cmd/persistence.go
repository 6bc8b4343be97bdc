package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	entitymemory "github.com/dukex/cadence/pkg/entitystore/memory"
	entitypostgres "github.com/dukex/cadence/pkg/entitystore/postgresql"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/idempotency/redis"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/persistence/postgresql"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/jonboulle/clockwork"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrPostgresRequired    = errors.New("provider requires a postgres database url")
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence picks the storage backend from the database URL scheme.
// A URL without a known scheme is treated as a directory for file persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		if err := os.MkdirAll(rest, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		return file.NewPersistence(rest), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, rest
		}
	}

	return "file", databaseURL
}

// NewGuard builds the idempotency guard. "store" keeps keys next to the runs: in
// PostgreSQL or in the file store's data directory. "memory" keeps them in the process.
// The returned close function releases any connection the guard opened.
func NewGuard(
	ctx context.Context,
	kind string,
	p persistence.Persistence,
	redisURL string,
	clock clockwork.Clock,
	retention time.Duration,
) (idempotency.Guard, func() error, error) {
	noop := func() error { return nil }

	switch kind {
	case "redis":
		client, err := redis.NewClient(ctx, redisURL)
		if err != nil {
			return nil, noop, err
		}

		return redis.NewGuard(client, retention), client.Close, nil
	case "", "store":
		if pg, ok := p.(*postgresql.Persistence); ok {
			return postgresql.NewGuard(pg.DB(), clock, retention), noop, nil
		}

		if fp, ok := p.(*file.Persistence); ok {
			return file.NewGuard(fp.Root(), clock, retention), noop, nil
		}

		return idempotency.NewMemoryGuard(clock, retention), noop, nil
	case "memory":
		return idempotency.NewMemoryGuard(clock, retention), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: idempotency %q", ErrUnsupportedProvider, kind)
	}
}

// NewEntityStore builds the host entity store. "postgres" shares the persistence
// connection pool and needs PostgreSQL persistence.
func NewEntityStore(ctx context.Context, logger *slog.Logger, kind string, p persistence.Persistence) (protocol.EntityStore, error) {
	switch kind {
	case "", "memory":
		return entitymemory.NewStore(), nil
	case "postgres", "postgresql":
		pg, ok := p.(*postgresql.Persistence)
		if !ok {
			return nil, fmt.Errorf("%w: entity store %q", ErrPostgresRequired, kind)
		}

		return entitypostgres.NewStore(ctx, logger, pg.DB())
	default:
		return nil, fmt.Errorf("%w: entity store %q", ErrUnsupportedProvider, kind)
	}
}
