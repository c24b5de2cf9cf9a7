package port

import (
	"context"
	"time"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// InstanceRepository defines persistence operations for obligation instances
type InstanceRepository interface {
	// CreateIfAbsent inserts the instance unless its key exists; first write wins
	CreateIfAbsent(ctx context.Context, instance *entity.Instance) (created bool, err error)

	// GetByKey returns ErrInstanceNotFound for unknown keys
	GetByKey(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error)

	// ListByState returns every instance currently in state, ordered by deadline
	ListByState(ctx context.Context, state workflow.State) ([]*entity.Instance, error)

	// List returns instances matching filter
	List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.Instance, error)

	// CompareAndSet persists next (with version+1) only if the stored instance is still
	// in expectedState at expectedVersion. It returns false when another writer won.
	CompareAndSet(ctx context.Context, expectedState workflow.State, expectedVersion int64, next *entity.Instance) (bool, error)

	// MarkReminderSent sets reminder_sent_at on a pending instance that has none yet
	MarkReminderSent(ctx context.Context, key entity.InstanceKey, at time.Time) (bool, error)

	// ArchiveStale copies instances of date in one of states whose deadline is before
	// cutoff into the archive and deletes them. Returns the number archived.
	ArchiveStale(ctx context.Context, date string, states []workflow.State, cutoff time.Time) (int, error)
}

// PenaltyRepository defines persistence operations for the penalty ledger
type PenaltyRepository interface {
	// InsertIfAbsent appends the record unless (instance_key, reason) already exists
	InsertIfAbsent(ctx context.Context, record *entity.PenaltyRecord) (inserted bool, err error)
	Exists(ctx context.Context, instanceKey string, reason entity.PenaltyReason) (bool, error)
	ListByInstance(ctx context.Context, instanceKey string) ([]*entity.PenaltyRecord, error)
	// ListByMonth returns records whose date starts with month (YYYY-MM)
	ListByMonth(ctx context.Context, month string) ([]*entity.PenaltyRecord, error)
}

// NotificationRepository defines persistence operations for the notification log
type NotificationRepository interface {
	Create(ctx context.Context, record *entity.NotificationRecord) error
	ListRecent(ctx context.Context, limit int) ([]*entity.NotificationRecord, error)
}

// SchedulerStateRepository stores small key/value markers that survive restarts
type SchedulerStateRepository interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
