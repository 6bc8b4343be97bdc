// Package postgresql is a protocol.EntityStore backed by a JSONB table.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/persistence/sqlbase"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/google/uuid"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE entities (
				id TEXT PRIMARY KEY,
				entity_type VARCHAR(100) NOT NULL,
				fields JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_entities_type ON entities(entity_type);
			CREATE INDEX idx_entities_fields ON entities USING GIN (fields);
		`,
	}
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ protocol.EntityStore = (*Store)(nil)

// NewStore migrates the entities table and returns a store using db.
func NewStore(ctx context.Context, logger *slog.Logger, db *sql.DB) (*Store, error) {
	manager := sqlbase.NewMigrationManager(logger, db, migrations(), sqlbase.WithTable("entity_schema_migrations"))
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate entity store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Create(ctx context.Context, entityType string, fields map[string]any) (*protocol.Entity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entity ID: %w", err)
	}

	return s.Put(ctx, &protocol.Entity{ID: id.String(), Type: entityType, Fields: fields})
}

// Put inserts or replaces an entity with a caller-chosen id.
func (s *Store) Put(ctx context.Context, entity *protocol.Entity) (*protocol.Entity, error) {
	data, err := marshalFields(entity.Fields)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO entities (id, entity_type, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type
		  , fields = EXCLUDED.fields
		  , updated_at = NOW()
		RETURNING id, entity_type, fields
	`, entity.ID, entity.Type, data)

	return s.scan("Put", entity.ID, row)
}

func (s *Store) Update(ctx context.Context, id string, fields map[string]any) (*protocol.Entity, error) {
	data, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE entities SET fields = fields || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING id, entity_type, fields
	`, id, data)

	return s.scan("Update", id, row)
}

func (s *Store) Get(ctx context.Context, id string) (*protocol.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, entity_type, fields FROM entities WHERE id = $1`, id)

	return s.scan("Get", id, row)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w: %w", id, protocol.ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entity %s: %w: %w", id, protocol.ErrUnavailable, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", protocol.ErrEntityNotFound, id)
	}

	return nil
}

// List returns entities of entityType whose fields contain filter. An empty type lists all types.
func (s *Store) List(ctx context.Context, entityType string, filter map[string]any) ([]*protocol.Entity, error) {
	data, err := marshalFields(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, fields
		FROM entities
		WHERE ($1 = '' OR entity_type = $1) AND fields @> $2::jsonb
		ORDER BY created_at, id
	`, entityType, data)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w: %w", protocol.ErrUnavailable, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entities := make([]*protocol.Entity, 0)

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}

		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w: %w", protocol.ErrUnavailable, err)
	}

	return entities, nil
}

func (s *Store) scan(op, id string, row *sql.Row) (*protocol.Entity, error) {
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", protocol.ErrEntityNotFound, id)
		}

		return nil, fmt.Errorf("%s entity %s: %w: %w", op, id, protocol.ErrUnavailable, err)
	}

	return entity, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*protocol.Entity, error) {
	var (
		entity protocol.Entity
		fields []byte
	)

	if err := row.Scan(&entity.ID, &entity.Type, &fields); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fields, &entity.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity fields: %w", err)
	}

	return &entity, nil
}

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal entity fields: %w", protocol.ErrInvalidStepInput, err)
	}

	return data, nil
}
