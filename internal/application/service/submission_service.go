package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// ErrSubmittedInFuture rejects a submission stamped later than the engine clock allows
var ErrSubmittedInFuture = errors.New("submitted_at is in the future")

// SubmitClockSkew is how far ahead of the engine clock submitted_at may be
const SubmitClockSkew = time.Minute

// SubmitRequest carries a submission from the report or task module
type SubmitRequest struct {
	PayloadRef  string
	SubmittedBy string
	At          time.Time
}

// SubmissionService exposes the engine-owned transitions to collaborating modules
type SubmissionService struct {
	instances port.InstanceRepository
	recorder  port.SubmissionRecorder
	engine    workflow.WorkflowEngine
	catalog   *obligation.Catalog
	clock     port.Clock
	logger    Logger
}

// NewSubmissionService creates a new SubmissionService. recorder may be nil.
func NewSubmissionService(
	instances port.InstanceRepository,
	recorder port.SubmissionRecorder,
	engine workflow.WorkflowEngine,
	catalog *obligation.Catalog,
	clock port.Clock,
	logger Logger,
) *SubmissionService {
	if clock == nil {
		clock = port.SystemClock
	}
	return &SubmissionService{
		instances: instances,
		recorder:  recorder,
		engine:    engine,
		catalog:   catalog,
		clock:     clock,
		logger:    orNop(logger),
	}
}

func (s *SubmissionService) definition(key entity.InstanceKey) (*obligation.Definition, error) {
	def, ok := s.catalog.Get(key.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", obligation.ErrInvalidDefinition, key.Kind)
	}
	return def, nil
}

// Get returns one instance
func (s *SubmissionService) Get(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error) {
	return s.instances.GetByKey(ctx, key)
}

// List returns instances matching filter
func (s *SubmissionService) List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.Instance, error) {
	return s.instances.List(ctx, filter)
}

// Submit moves a pending instance to submitted, and on to under_review for kinds
// with a review phase. Submissions are accepted while the instance is pending,
// even after the deadline. The review clock starts at engine time, not at At.
func (s *SubmissionService) Submit(ctx context.Context, key entity.InstanceKey, req SubmitRequest) (*entity.Instance, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	at := req.At
	if at.IsZero() {
		at = now
	}
	if at.After(now.Add(SubmitClockSkew)) {
		return nil, fmt.Errorf("%w: %s", ErrSubmittedInFuture, at.Format(time.RFC3339))
	}

	res, err := s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: submitTriggers(def),
		Actor:    req.SubmittedBy,
		Mutate:   applySubmission(def, at, now, req.SubmittedBy, req.PayloadRef),
	})
	if err != nil {
		s.logger.Warn("Submission rejected", "instance_key", key.String(), "error", err)
		return nil, err
	}

	if s.recorder != nil {
		state := entity.SubmissionState{Submitted: true, SubmittedAt: at, SubmittedBy: req.SubmittedBy, PayloadRef: req.PayloadRef}
		if err := s.recorder.RecordSubmission(ctx, key, state); err != nil {
			s.logger.Error("Failed to record submission", "instance_key", key.String(), "error", err)
		}
	}

	s.logger.Info("Instance submitted", "instance_key", key.String(), "state", res.Instance.State)
	return res.Instance, nil
}

// Approve resolves an under_review instance as approved
func (s *SubmissionService) Approve(ctx context.Context, key entity.InstanceKey, reviewer string, rating *int) (*entity.Instance, error) {
	if _, err := s.definition(key); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	res, err := s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: []domainwf.Trigger{domainwf.TriggerApprove},
		Actor:    reviewer,
		Mutate: func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = reviewer
			next.Rating = rating
			next.UpdatedAt = now
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Instance, nil
}

// Reject resolves an under_review instance as rejected and issues the rejection penalty
func (s *SubmissionService) Reject(ctx context.Context, key entity.InstanceKey, reviewer, reason string) (*entity.Instance, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	res, err := s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: []domainwf.Trigger{domainwf.TriggerReject},
		Actor:    reviewer,
		Mutate: func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = reviewer
			next.Reason = reason
			next.UpdatedAt = now
		},
		Penalty: &workflow.PenaltyRequest{
			InstanceKey: key,
			Reason:      entity.ReasonRejected,
			Points:      def.Penalty.Points,
			Category:    def.PenaltyCategory(key.Window),
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Instance, nil
}

// Decline moves a pending instance to declined. A penalty is issued only when
// the kind configures non-zero decline points.
func (s *SubmissionService) Decline(ctx context.Context, key entity.InstanceKey, by, reason string) (*entity.Instance, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	res, err := s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: []domainwf.Trigger{domainwf.TriggerDecline},
		Actor:    by,
		Mutate: func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = by
			next.Reason = reason
			next.UpdatedAt = now
		},
		Penalty: &workflow.PenaltyRequest{
			InstanceKey: key,
			Reason:      entity.ReasonDeclined,
			Points:      def.Penalty.DeclinePoints,
			Category:    def.PenaltyCategory(key.Window),
			EntityID:    key.EntityID,
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Instance, nil
}
