package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// Op names a store operation for fault injection
type Op string

const (
	OpCreateInstance  Op = "instance.create"
	OpGetInstance     Op = "instance.get"
	OpListInstances   Op = "instance.list"
	OpCompareAndSet   Op = "instance.cas"
	OpMarkReminder    Op = "instance.reminder"
	OpArchive         Op = "instance.archive"
	OpInsertPenalty   Op = "penalty.insert"
	OpListPenalties   Op = "penalty.list"
	OpListEntities    Op = "entity.list"
	OpGetSubmission   Op = "submission.get"
	OpSetState        Op = "state.set"
	OpCreateNotifyLog Op = "notification.create"
)

type txKey struct{}

// journal collects undo actions for one transaction
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// Store is a process-local implementation of every persistence port.
// Transactions are serialized and rolled back through an undo journal.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	instances     map[string]*entity.Instance
	archived      map[string]*entity.Instance
	penalties     map[string]*entity.PenaltyRecord
	penaltyOrder  []string
	notifications []*entity.NotificationRecord
	state         map[string]string
	entities      map[string]entity.Entity
	entityOrder   []string
	submissions   map[string]entity.SubmissionState

	faults map[Op]error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		instances:   make(map[string]*entity.Instance),
		archived:    make(map[string]*entity.Instance),
		penalties:   make(map[string]*entity.PenaltyRecord),
		state:       make(map[string]string),
		entities:    make(map[string]entity.Entity),
		submissions: make(map[string]entity.SubmissionState),
		faults:      make(map[Op]error),
	}
}

// InjectFault makes op fail with ErrStoreUnavailable wrapping err; nil clears it
func (s *Store) InjectFault(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// fault must be called with s.mu held
func (s *Store) fault(op Op) error {
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("%w: %s: %v", port.ErrStoreUnavailable, op, err)
	}
	return nil
}

// WithTransaction implements port.TransactionManager
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	txCtx := context.WithValue(ctx, txKey{}, j)

	defer func() {
		if p := recover(); p != nil {
			s.mu.Lock()
			j.rollback()
			s.mu.Unlock()
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		s.mu.Lock()
		j.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

// undo registers fn on the context's journal, if any. Must be called with s.mu held.
func undo(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.record(fn)
	}
}

// Instances returns the instance repository view
func (s *Store) Instances() *InstanceRepository {
	return &InstanceRepository{s: s}
}

// Penalties returns the penalty ledger view
func (s *Store) Penalties() *PenaltyRepository {
	return &PenaltyRepository{s: s}
}

// Notifications returns the notification log view
func (s *Store) Notifications() *NotificationRepository {
	return &NotificationRepository{s: s}
}

// SchedulerState returns the key/value scheduler state view
func (s *Store) SchedulerState() *SchedulerStateRepository {
	return &SchedulerStateRepository{s: s}
}

// Entities returns the entity directory view
func (s *Store) Entities() *EntityRepository {
	return &EntityRepository{s: s}
}

// Submissions returns the submission store view
func (s *Store) Submissions() *SubmissionRepository {
	return &SubmissionRepository{s: s}
}

var _ port.TransactionManager = (*Store)(nil)
