package memory

import (
	"context"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// NotificationRepository implements port.NotificationRepository in memory
type NotificationRepository struct {
	s *Store
}

// Create appends a delivery attempt
func (r *NotificationRepository) Create(ctx context.Context, record *entity.NotificationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpCreateNotifyLog); err != nil {
		return err
	}
	c := *record
	c.ID = int64(len(r.s.notifications) + 1)
	record.ID = c.ID
	r.s.notifications = append(r.s.notifications, &c)
	return nil
}

// ListRecent returns up to limit records, newest first
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]*entity.NotificationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*entity.NotificationRecord
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		c := *r.s.notifications[i]
		result = append(result, &c)
	}
	return result, nil
}

// SchedulerStateRepository implements port.SchedulerStateRepository in memory
type SchedulerStateRepository struct {
	s *Store
}

// Get returns the stored value for key
func (r *SchedulerStateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.state[key]
	return v, ok, nil
}

// Set stores value under key
func (r *SchedulerStateRepository) Set(ctx context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpSetState); err != nil {
		return err
	}
	prev, had := r.s.state[key]
	r.s.state[key] = value
	undo(ctx, func() {
		if had {
			r.s.state[key] = prev
		} else {
			delete(r.s.state, key)
		}
	})
	return nil
}

// EntityRepository implements port.EntityRepository in memory
type EntityRepository struct {
	s *Store
}

// Upsert inserts or replaces an entity
func (r *EntityRepository) Upsert(ctx context.Context, e entity.Entity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.entities[e.ID]; !exists {
		r.s.entityOrder = append(r.s.entityOrder, e.ID)
	}
	e.ObligationKinds = append([]string(nil), e.ObligationKinds...)
	r.s.entities[e.ID] = e
	return nil
}

// GetByID returns one entity
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*entity.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entities[id]
	if !ok {
		return nil, port.ErrEntityNotFound
	}
	return &e, nil
}

// ListActiveEntities returns active entities in insertion order
func (r *EntityRepository) ListActiveEntities(ctx context.Context) ([]entity.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpListEntities); err != nil {
		return nil, err
	}
	var result []entity.Entity
	for _, id := range r.s.entityOrder {
		if e := r.s.entities[id]; e.Active {
			result = append(result, e)
		}
	}
	return result, nil
}

// SubmissionRepository implements port.SubmissionStore and port.SubmissionRecorder in memory
type SubmissionRepository struct {
	s *Store
}

// GetSubmissionState returns the zero state when nothing was submitted
func (r *SubmissionRepository) GetSubmissionState(ctx context.Context, key entity.InstanceKey) (entity.SubmissionState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpGetSubmission); err != nil {
		return entity.SubmissionState{}, err
	}
	return r.s.submissions[key.String()], nil
}

// RecordSubmission stores the submission for key
func (r *SubmissionRepository) RecordSubmission(ctx context.Context, key entity.InstanceKey, state entity.SubmissionState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, had := r.s.submissions[key.String()]
	r.s.submissions[key.String()] = state
	undo(ctx, func() {
		if had {
			r.s.submissions[key.String()] = prev
		} else {
			delete(r.s.submissions, key.String())
		}
	})
	return nil
}

var (
	_ port.NotificationRepository   = (*NotificationRepository)(nil)
	_ port.SchedulerStateRepository = (*SchedulerStateRepository)(nil)
	_ port.EntityRepository         = (*EntityRepository)(nil)
	_ port.SubmissionStore          = (*SubmissionRepository)(nil)
	_ port.SubmissionRecorder       = (*SubmissionRepository)(nil)
)
