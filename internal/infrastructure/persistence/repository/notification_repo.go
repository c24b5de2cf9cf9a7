package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlite.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a delivery attempt to the notification log
func (r *NotificationRepository) Create(ctx context.Context, record *entity.NotificationRecord) error {
	query := `
		INSERT INTO notification_log (
			target, title, body, metadata, instance_key, event_type,
			status, error_message, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		record.Target,
		record.Title,
		record.Body,
		record.Metadata,
		record.InstanceKey,
		record.EventType,
		record.Status,
		record.ErrorMessage,
		sqlite.NullTime(record.SentAt),
		sqlite.FormatTime(record.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create notification record", zap.Error(err))
		return sqlite.Unavailable("create notification", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return sqlite.Unavailable("create notification", err)
	}
	record.ID = id
	return nil
}

// ListRecent returns the latest delivery attempts, newest first
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]*entity.NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, target, title, body, metadata, instance_key, event_type,
			status, error_message, sent_at, created_at
		FROM notification_log
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, sqlite.Unavailable("list notifications", err)
	}
	defer rows.Close()

	var records []*entity.NotificationRecord
	for rows.Next() {
		var (
			rec       entity.NotificationRecord
			sentAt    sql.NullString
			createdAt string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Target, &rec.Title, &rec.Body, &rec.Metadata, &rec.InstanceKey,
			&rec.EventType, &rec.Status, &rec.ErrorMessage, &sentAt, &createdAt,
		); err != nil {
			return nil, sqlite.Unavailable("scan notification", err)
		}
		if rec.SentAt, err = sqlite.ParseNullTime(sentAt); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite.Unavailable("list notifications", err)
	}
	return records, nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
