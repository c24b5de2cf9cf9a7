package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

// EntityRepository implements port.EntityRepository
type EntityRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *sqlite.DB, logger *zap.Logger) *EntityRepository {
	return &EntityRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces an entity
func (r *EntityRepository) Upsert(ctx context.Context, e entity.Entity) error {
	kinds, err := json.Marshal(e.ObligationKinds)
	if err != nil {
		return fmt.Errorf("failed to encode obligation kinds: %w", err)
	}

	query := `
		INSERT INTO entities (id, name, notify_id, obligation_kinds, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			notify_id = excluded.notify_id,
			obligation_kinds = excluded.obligation_kinds,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Executor(ctx).ExecContext(ctx, query, e.ID, e.Name, e.NotifyID, string(kinds), e.Active, sqlite.FormatTime(time.Now()))
	if err != nil {
		r.logger.Error("Failed to upsert entity", zap.String("entity_id", e.ID), zap.Error(err))
		return sqlite.Unavailable("upsert entity", err)
	}
	return nil
}

// GetByID returns port.ErrEntityNotFound for unknown ids
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*entity.Entity, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, notify_id, obligation_kinds, active FROM entities WHERE id = ?`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, sqlite.Unavailable("get entity", err)
	}
	return e, nil
}

// ListActiveEntities returns active entities ordered by id
func (r *EntityRepository) ListActiveEntities(ctx context.Context) ([]entity.Entity, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, name, notify_id, obligation_kinds, active FROM entities WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, sqlite.Unavailable("list entities", err)
	}
	defer rows.Close()

	var entities []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, sqlite.Unavailable("scan entity", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Unavailable("list entities", err)
	}
	return entities, nil
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var (
		e     entity.Entity
		kinds string
	)
	if err := row.Scan(&e.ID, &e.Name, &e.NotifyID, &kinds, &e.Active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(kinds), &e.ObligationKinds); err != nil {
		return nil, fmt.Errorf("entity %s: decode obligation kinds: %w", e.ID, err)
	}
	return &e, nil
}

var _ port.EntityRepository = (*EntityRepository)(nil)
