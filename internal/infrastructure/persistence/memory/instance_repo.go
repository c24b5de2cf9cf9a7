package memory

import (
	"context"
	"sort"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// InstanceRepository implements port.InstanceRepository in memory
type InstanceRepository struct {
	s *Store
}

// CreateIfAbsent inserts instance unless its key already exists
func (r *InstanceRepository) CreateIfAbsent(ctx context.Context, instance *entity.Instance) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpCreateInstance); err != nil {
		return false, err
	}
	key := instance.Key.String()
	if _, exists := r.s.instances[key]; exists {
		return false, nil
	}
	r.s.instances[key] = instance.Clone()
	undo(ctx, func() { delete(r.s.instances, key) })
	return true, nil
}

// GetByKey returns a copy of the stored instance
func (r *InstanceRepository) GetByKey(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpGetInstance); err != nil {
		return nil, err
	}
	inst, ok := r.s.instances[key.String()]
	if !ok {
		return nil, port.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// ListByState returns instances in state ordered by deadline
func (r *InstanceRepository) ListByState(ctx context.Context, state workflow.State) ([]*entity.Instance, error) {
	return r.List(ctx, entity.InstanceFilter{State: state})
}

// List returns instances matching filter ordered by deadline then key
func (r *InstanceRepository) List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpListInstances); err != nil {
		return nil, err
	}

	var result []*entity.Instance
	for _, inst := range r.s.instances {
		if filter.State != "" && inst.State != filter.State {
			continue
		}
		if filter.Date != "" && inst.Key.Date != filter.Date {
			continue
		}
		if filter.Kind != "" && inst.Key.Kind != filter.Kind {
			continue
		}
		result = append(result, inst.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Deadline.Equal(result[j].Deadline) {
			return result[i].Deadline.Before(result[j].Deadline)
		}
		return result[i].Key.String() < result[j].Key.String()
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CompareAndSet replaces the stored instance if state and version still match
func (r *InstanceRepository) CompareAndSet(ctx context.Context, expectedState workflow.State, expectedVersion int64, next *entity.Instance) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpCompareAndSet); err != nil {
		return false, err
	}
	key := next.Key.String()
	current, ok := r.s.instances[key]
	if !ok {
		return false, port.ErrInstanceNotFound
	}
	if current.State != expectedState || current.Version != expectedVersion {
		return false, nil
	}

	stored := next.Clone()
	stored.Version = expectedVersion + 1
	r.s.instances[key] = stored
	next.Version = stored.Version
	undo(ctx, func() { r.s.instances[key] = current })
	return true, nil
}

// MarkReminderSent stamps reminder_sent_at on a pending instance without one
func (r *InstanceRepository) MarkReminderSent(ctx context.Context, key entity.InstanceKey, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpMarkReminder); err != nil {
		return false, err
	}
	current, ok := r.s.instances[key.String()]
	if !ok {
		return false, port.ErrInstanceNotFound
	}
	if current.State != workflow.StatePending || current.ReminderSentAt != nil {
		return false, nil
	}

	updated := current.Clone()
	updated.ReminderSentAt = &at
	updated.UpdatedAt = at
	r.s.instances[key.String()] = updated
	undo(ctx, func() { r.s.instances[key.String()] = current })
	return true, nil
}

// ArchiveStale moves matching instances into the archive
func (r *InstanceRepository) ArchiveStale(ctx context.Context, date string, states []workflow.State, cutoff time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpArchive); err != nil {
		return 0, err
	}

	allowed := make(map[workflow.State]bool, len(states))
	for _, st := range states {
		allowed[st] = true
	}

	count := 0
	for key, inst := range r.s.instances {
		if inst.Key.Date != date || !allowed[inst.State] || !inst.Deadline.Before(cutoff) {
			continue
		}
		k, v := key, inst
		delete(r.s.instances, k)
		r.s.archived[k] = v
		undo(ctx, func() {
			delete(r.s.archived, k)
			r.s.instances[k] = v
		})
		count++
	}
	return count, nil
}

// Archived returns a copy of an archived instance
func (r *InstanceRepository) Archived(key entity.InstanceKey) (*entity.Instance, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.archived[key.String()]
	return inst.Clone(), ok
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
