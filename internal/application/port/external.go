package port

import (
	"context"
	"time"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// EntityDirectory lists the entities that owe obligations
type EntityDirectory interface {
	ListActiveEntities(ctx context.Context) ([]entity.Entity, error)
}

// EntityRepository is the writable directory backed by the store
type EntityRepository interface {
	EntityDirectory
	Upsert(ctx context.Context, e entity.Entity) error
	GetByID(ctx context.Context, id string) (*entity.Entity, error)
}

// SubmissionStore reports whether the report/task module holds a submission for an instance
type SubmissionStore interface {
	GetSubmissionState(ctx context.Context, key entity.InstanceKey) (entity.SubmissionState, error)
}

// SubmissionRecorder is the write side used when submissions arrive through the engine API
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, key entity.InstanceKey, state entity.SubmissionState) error
}

// Notifier delivers a rendered notification to one target or the admin channel
type Notifier interface {
	Send(ctx context.Context, n entity.Notification) error
}

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the wall clock
var SystemClock Clock = ClockFunc(time.Now)
