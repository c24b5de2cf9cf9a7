package memory

import (
	"context"
	"strings"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// PenaltyRepository implements port.PenaltyRepository in memory
type PenaltyRepository struct {
	s *Store
}

func dedupKey(instanceKey string, reason entity.PenaltyReason) string {
	return instanceKey + "#" + reason.String()
}

// InsertIfAbsent appends record unless its (instance key, reason) already exists
func (r *PenaltyRepository) InsertIfAbsent(ctx context.Context, record *entity.PenaltyRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpInsertPenalty); err != nil {
		return false, err
	}
	k := dedupKey(record.InstanceKey, record.Reason)
	if _, exists := r.s.penalties[k]; exists {
		return false, nil
	}

	stored := *record
	r.s.penalties[k] = &stored
	r.s.penaltyOrder = append(r.s.penaltyOrder, k)
	undo(ctx, func() {
		delete(r.s.penalties, k)
		for i := len(r.s.penaltyOrder) - 1; i >= 0; i-- {
			if r.s.penaltyOrder[i] == k {
				r.s.penaltyOrder = append(r.s.penaltyOrder[:i], r.s.penaltyOrder[i+1:]...)
				break
			}
		}
	})
	return true, nil
}

// Exists reports whether a record with the dedup key exists
func (r *PenaltyRepository) Exists(ctx context.Context, instanceKey string, reason entity.PenaltyReason) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.penalties[dedupKey(instanceKey, reason)]
	return ok, nil
}

// ListByInstance returns records for one instance in insertion order
func (r *PenaltyRepository) ListByInstance(ctx context.Context, instanceKey string) ([]*entity.PenaltyRecord, error) {
	return r.filter(func(p *entity.PenaltyRecord) bool { return p.InstanceKey == instanceKey })
}

// ListByMonth returns records dated in month (YYYY-MM) in insertion order
func (r *PenaltyRepository) ListByMonth(ctx context.Context, month string) ([]*entity.PenaltyRecord, error) {
	return r.filter(func(p *entity.PenaltyRecord) bool { return strings.HasPrefix(p.Date, month+"-") })
}

// All returns every record in insertion order
func (r *PenaltyRepository) All() []*entity.PenaltyRecord {
	records, _ := r.filter(func(*entity.PenaltyRecord) bool { return true })
	return records
}

func (r *PenaltyRepository) filter(match func(*entity.PenaltyRecord) bool) ([]*entity.PenaltyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fault(OpListPenalties); err != nil {
		return nil, err
	}
	var result []*entity.PenaltyRecord
	for _, k := range r.s.penaltyOrder {
		p := r.s.penalties[k]
		if match(p) {
			c := *p
			result = append(result, &c)
		}
	}
	return result, nil
}

var _ port.PenaltyRepository = (*PenaltyRepository)(nil)
