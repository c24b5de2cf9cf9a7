package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/workflow"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

const instanceColumns = `
	instance_key, kind, entity_id, local_date, window_name, state, version, deadline,
	submitted_at, submitted_by, payload_ref, review_started_at, review_deadline,
	resolved_at, resolved_by, reason, rating, reminder_sent_at, created_at, updated_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqlite.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts instance unless its key exists
func (r *InstanceRepository) CreateIfAbsent(ctx context.Context, instance *entity.Instance) (bool, error) {
	query := `INSERT INTO instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_key) DO NOTHING`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, instanceArgs(instance)...)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("instance_key", instance.Key.String()), zap.Error(err))
		return false, sqlite.Unavailable("create instance", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, sqlite.Unavailable("create instance", err)
	}
	return n == 1, nil
}

// GetByKey retrieves an instance by key
func (r *InstanceRepository) GetByKey(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE instance_key = ?`

	inst, err := scanInstance(r.db.Executor(ctx).QueryRowContext(ctx, query, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrInstanceNotFound, key)
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("instance_key", key.String()), zap.Error(err))
		return nil, sqlite.Unavailable("get instance", err)
	}
	return inst, nil
}

// ListByState returns instances in state ordered by deadline
func (r *InstanceRepository) ListByState(ctx context.Context, state workflow.State) ([]*entity.Instance, error) {
	return r.List(ctx, entity.InstanceFilter{State: state})
}

// List returns instances matching filter ordered by deadline then key
func (r *InstanceRepository) List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.Instance, error) {
	var where []string
	var args []interface{}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Date != "" {
		where = append(where, "local_date = ?")
		args = append(args, filter.Date)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := `SELECT ` + instanceColumns + ` FROM instances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY deadline, instance_key"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, sqlite.Unavailable("list instances", err)
	}
	defer rows.Close()

	var instances []*entity.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, sqlite.Unavailable("scan instance", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Unavailable("list instances", err)
	}
	return instances, nil
}

// CompareAndSet writes next with version+1 when the row still has expectedState and expectedVersion
func (r *InstanceRepository) CompareAndSet(ctx context.Context, expectedState workflow.State, expectedVersion int64, next *entity.Instance) (bool, error) {
	query := `
		UPDATE instances SET
			state = ?, version = ?, deadline = ?, submitted_at = ?, submitted_by = ?,
			payload_ref = ?, review_started_at = ?, review_deadline = ?, resolved_at = ?,
			resolved_by = ?, reason = ?, rating = ?, reminder_sent_at = ?, updated_at = ?
		WHERE instance_key = ? AND state = ? AND version = ?
	`

	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(next.State),
		expectedVersion+1,
		sqlite.FormatTime(next.Deadline),
		sqlite.NullTime(next.SubmittedAt),
		next.SubmittedBy,
		next.PayloadRef,
		sqlite.NullTime(next.ReviewStarted),
		sqlite.NullTime(next.ReviewDeadline),
		sqlite.NullTime(next.ResolvedAt),
		next.ResolvedBy,
		next.Reason,
		nullInt(next.Rating),
		sqlite.NullTime(next.ReminderSentAt),
		sqlite.FormatTime(updatedAt),
		next.Key.String(),
		string(expectedState),
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("instance_key", next.Key.String()), zap.Error(err))
		return false, sqlite.Unavailable("update instance", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, sqlite.Unavailable("update instance", err)
	}
	if n == 0 {
		return false, r.mustExist(ctx, next.Key)
	}
	next.Version = expectedVersion + 1
	return true, nil
}

// MarkReminderSent stamps reminder_sent_at on a pending instance that has none
func (r *InstanceRepository) MarkReminderSent(ctx context.Context, key entity.InstanceKey, at time.Time) (bool, error) {
	query := `
		UPDATE instances SET reminder_sent_at = ?, updated_at = ?
		WHERE instance_key = ? AND state = ? AND reminder_sent_at IS NULL
	`

	stamp := sqlite.FormatTime(at)
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, stamp, stamp, key.String(), string(workflow.StatePending))
	if err != nil {
		return false, sqlite.Unavailable("mark reminder", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, sqlite.Unavailable("mark reminder", err)
	}
	if n == 0 {
		return false, r.mustExist(ctx, key)
	}
	return true, nil
}

// ArchiveStale copies matching rows into archived_instances and deletes them, in one transaction
func (r *InstanceRepository) ArchiveStale(ctx context.Context, date string, states []workflow.State, cutoff time.Time) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}

	where := `local_date = ? AND deadline < ? AND state IN (` + sqlite.Placeholders(len(states)) + `)`
	args := []interface{}{date, sqlite.FormatTime(cutoff)}
	for _, st := range states {
		args = append(args, string(st))
	}

	var archived int
	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		copyQuery := `INSERT OR REPLACE INTO archived_instances (` + instanceColumns + `, archived_at)
			SELECT ` + instanceColumns + `, ? FROM instances WHERE ` + where
		copyArgs := append([]interface{}{sqlite.FormatTime(cutoff)}, args...)
		if _, err := exec.ExecContext(txCtx, copyQuery, copyArgs...); err != nil {
			return sqlite.Unavailable("archive instances", err)
		}

		result, err := exec.ExecContext(txCtx, `DELETE FROM instances WHERE `+where, args...)
		if err != nil {
			return sqlite.Unavailable("delete archived instances", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return sqlite.Unavailable("delete archived instances", err)
		}
		archived = int(n)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to archive instances", zap.String("date", date), zap.Error(err))
		return 0, err
	}
	return archived, nil
}

// GetArchived returns an archived instance by key
func (r *InstanceRepository) GetArchived(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM archived_instances WHERE instance_key = ?`

	inst, err := scanInstance(r.db.Executor(ctx).QueryRowContext(ctx, query, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrInstanceNotFound, key)
	}
	if err != nil {
		return nil, sqlite.Unavailable("get archived instance", err)
	}
	return inst, nil
}

func (r *InstanceRepository) mustExist(ctx context.Context, key entity.InstanceKey) error {
	var one int
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT 1 FROM instances WHERE instance_key = ?`, key.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", port.ErrInstanceNotFound, key)
	}
	if err != nil {
		return sqlite.Unavailable("check instance", err)
	}
	return nil
}

func instanceArgs(i *entity.Instance) []interface{} {
	return []interface{}{
		i.Key.String(),
		i.Key.Kind,
		i.Key.EntityID,
		i.Key.Date,
		i.Key.Window,
		string(i.State),
		i.Version,
		sqlite.FormatTime(i.Deadline),
		sqlite.NullTime(i.SubmittedAt),
		i.SubmittedBy,
		i.PayloadRef,
		sqlite.NullTime(i.ReviewStarted),
		sqlite.NullTime(i.ReviewDeadline),
		sqlite.NullTime(i.ResolvedAt),
		i.ResolvedBy,
		i.Reason,
		nullInt(i.Rating),
		sqlite.NullTime(i.ReminderSentAt),
		sqlite.FormatTime(i.CreatedAt),
		sqlite.FormatTime(i.UpdatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.Instance, error) {
	var (
		inst                                          entity.Instance
		rawKey, state, deadline, createdAt, updatedAt string
		submittedAt, reviewStarted, reviewDeadline    sql.NullString
		resolvedAt, reminderSentAt                    sql.NullString
		rating                                        sql.NullInt64
	)

	err := row.Scan(
		&rawKey,
		&inst.Key.Kind,
		&inst.Key.EntityID,
		&inst.Key.Date,
		&inst.Key.Window,
		&state,
		&inst.Version,
		&deadline,
		&submittedAt,
		&inst.SubmittedBy,
		&inst.PayloadRef,
		&reviewStarted,
		&reviewDeadline,
		&resolvedAt,
		&inst.ResolvedBy,
		&inst.Reason,
		&rating,
		&reminderSentAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.State = workflow.State(state)
	if inst.Deadline, err = sqlite.ParseTime(deadline); err != nil {
		return nil, err
	}
	if inst.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{submittedAt, &inst.SubmittedAt},
		{reviewStarted, &inst.ReviewStarted},
		{reviewDeadline, &inst.ReviewDeadline},
		{resolvedAt, &inst.ResolvedAt},
		{reminderSentAt, &inst.ReminderSentAt},
	} {
		if *f.dst, err = sqlite.ParseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	if rating.Valid {
		v := int(rating.Int64)
		inst.Rating = &v
	}
	return &inst, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
