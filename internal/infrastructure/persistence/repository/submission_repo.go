package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

// SubmissionRepository implements port.SubmissionStore and port.SubmissionRecorder
type SubmissionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sqlite.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// GetSubmissionState returns the zero state when nothing was submitted for key
func (r *SubmissionRepository) GetSubmissionState(ctx context.Context, key entity.InstanceKey) (entity.SubmissionState, error) {
	var (
		state       entity.SubmissionState
		submittedAt string
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT submitted_at, submitted_by, payload_ref FROM submissions WHERE instance_key = ?`,
		key.String(),
	).Scan(&submittedAt, &state.SubmittedBy, &state.PayloadRef)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.SubmissionState{}, nil
	}
	if err != nil {
		return entity.SubmissionState{}, sqlite.Unavailable("get submission", err)
	}

	if state.SubmittedAt, err = sqlite.ParseTime(submittedAt); err != nil {
		return entity.SubmissionState{}, err
	}
	state.Submitted = true
	return state, nil
}

// RecordSubmission stores or replaces the submission for key
func (r *SubmissionRepository) RecordSubmission(ctx context.Context, key entity.InstanceKey, state entity.SubmissionState) error {
	query := `
		INSERT INTO submissions (instance_key, submitted_at, submitted_by, payload_ref, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(instance_key) DO UPDATE SET
			submitted_at = excluded.submitted_at,
			submitted_by = excluded.submitted_by,
			payload_ref = excluded.payload_ref,
			recorded_at = excluded.recorded_at
	`
	submittedAt := state.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		key.String(), sqlite.FormatTime(submittedAt), state.SubmittedBy, state.PayloadRef, sqlite.FormatTime(time.Now()))
	if err != nil {
		r.logger.Error("Failed to record submission", zap.String("instance_key", key.String()), zap.Error(err))
		return sqlite.Unavailable("record submission", err)
	}
	return nil
}

var (
	_ port.SubmissionStore    = (*SubmissionRepository)(nil)
	_ port.SubmissionRecorder = (*SubmissionRepository)(nil)
)
