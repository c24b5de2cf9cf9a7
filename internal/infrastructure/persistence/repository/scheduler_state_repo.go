package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

// SchedulerStateRepository implements port.SchedulerStateRepository
type SchedulerStateRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSchedulerStateRepository creates a new scheduler state repository
func NewSchedulerStateRepository(db *sqlite.DB, logger *zap.Logger) *SchedulerStateRepository {
	return &SchedulerStateRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the stored value for key
func (r *SchedulerStateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT value FROM scheduler_state WHERE state_key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, sqlite.Unavailable("get scheduler state", err)
	}
	return value, true, nil
}

// Set stores value under key
func (r *SchedulerStateRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO scheduler_state (state_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(state_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, key, value, sqlite.FormatTime(time.Now())); err != nil {
		r.logger.Error("Failed to set scheduler state", zap.String("key", key), zap.Error(err))
		return sqlite.Unavailable("set scheduler state", err)
	}
	return nil
}

var _ port.SchedulerStateRepository = (*SchedulerStateRepository)(nil)
