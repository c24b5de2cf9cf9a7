package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

const penaltyColumns = `id, entity_id, category, points, local_date, instance_key, reason, created_at`

// PenaltyRepository implements port.PenaltyRepository
type PenaltyRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewPenaltyRepository creates a new penalty repository
func NewPenaltyRepository(db *sqlite.DB, logger *zap.Logger) *PenaltyRepository {
	return &PenaltyRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent appends record unless (instance_key, reason) exists.
// The unique index makes the check and the write a single statement.
func (r *PenaltyRepository) InsertIfAbsent(ctx context.Context, record *entity.PenaltyRecord) (bool, error) {
	query := `INSERT INTO penalties (` + penaltyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_key, reason) DO NOTHING`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		record.ID,
		record.EntityID,
		record.Category,
		record.Points.String(),
		record.Date,
		record.InstanceKey,
		string(record.Reason),
		sqlite.FormatTime(record.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to insert penalty",
			zap.String("instance_key", record.InstanceKey),
			zap.String("reason", string(record.Reason)),
			zap.Error(err))
		return false, sqlite.Unavailable("insert penalty", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, sqlite.Unavailable("insert penalty", err)
	}
	return n == 1, nil
}

// Exists reports whether a penalty with the dedup key is recorded
func (r *PenaltyRepository) Exists(ctx context.Context, instanceKey string, reason entity.PenaltyReason) (bool, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM penalties WHERE instance_key = ? AND reason = ?`,
		instanceKey, string(reason),
	).Scan(&count)
	if err != nil {
		return false, sqlite.Unavailable("check penalty", err)
	}
	return count > 0, nil
}

// ListByInstance returns every penalty of one instance
func (r *PenaltyRepository) ListByInstance(ctx context.Context, instanceKey string) ([]*entity.PenaltyRecord, error) {
	return r.query(ctx, `SELECT `+penaltyColumns+` FROM penalties WHERE instance_key = ? ORDER BY created_at, id`, instanceKey)
}

// ListByMonth returns penalties whose local date falls in month (YYYY-MM)
func (r *PenaltyRepository) ListByMonth(ctx context.Context, month string) ([]*entity.PenaltyRecord, error) {
	return r.query(ctx, `SELECT `+penaltyColumns+` FROM penalties WHERE substr(local_date, 1, 7) = ? ORDER BY local_date, entity_id, created_at`, month)
}

func (r *PenaltyRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.PenaltyRecord, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query penalties", zap.Error(err))
		return nil, sqlite.Unavailable("query penalties", err)
	}
	defer rows.Close()

	var records []*entity.PenaltyRecord
	for rows.Next() {
		var (
			rec       entity.PenaltyRecord
			points    string
			reason    string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.Category, &points, &rec.Date, &rec.InstanceKey, &reason, &createdAt); err != nil {
			return nil, sqlite.Unavailable("scan penalty", err)
		}
		if rec.Points, err = decimal.NewFromString(points); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
			return nil, err
		}
		rec.Reason = entity.PenaltyReason(reason)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Unavailable("query penalties", err)
	}
	return records, nil
}

var _ port.PenaltyRepository = (*PenaltyRepository)(nil)
