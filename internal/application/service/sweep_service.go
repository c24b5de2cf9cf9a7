package service

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// SweepService fails pending instances whose deadline has passed
type SweepService struct {
	instances   port.InstanceRepository
	submissions port.SubmissionStore
	engine      workflow.WorkflowEngine
	catalog     *obligation.Catalog
	logger      Logger
}

// NewSweepService creates a new SweepService
func NewSweepService(
	instances port.InstanceRepository,
	submissions port.SubmissionStore,
	engine workflow.WorkflowEngine,
	catalog *obligation.Catalog,
	logger Logger,
) *SweepService {
	return &SweepService{
		instances:   instances,
		submissions: submissions,
		engine:      engine,
		catalog:     catalog,
		logger:      orNop(logger),
	}
}

// Sweep handles every pending instance with deadline < now. When date is not
// empty only instances of that local date are considered.
func (s *SweepService) Sweep(ctx context.Context, now time.Time, date string) *StepReport {
	report := NewStepReport(StepSweep)

	pending, err := s.instances.ListByState(ctx, domainwf.StatePending)
	if err != nil {
		report.Fail("list", err)
		return report
	}

	for _, inst := range pending {
		if date != "" && inst.Key.Date != date {
			continue
		}
		if !inst.IsOverdue(now) {
			continue
		}
		report.Examined++
		s.sweepOne(ctx, report, inst, now)
	}

	return report
}

func (s *SweepService) sweepOne(ctx context.Context, report *StepReport, inst *entity.Instance, now time.Time) {
	key := inst.Key
	def, ok := s.catalog.Get(key.Kind)
	if !ok {
		s.logger.Warn("Skipping instance of unknown kind", "instance_key", key.String())
		report.Skipped++
		return
	}

	sub, err := s.submissions.GetSubmissionState(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read submission state", "instance_key", key.String(), "error", err)
		report.Fail(key.String(), err)
		return
	}

	if sub.Submitted {
		s.reconcile(ctx, report, def, inst, sub, now)
		return
	}

	_, err = s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: []domainwf.Trigger{domainwf.TriggerFail},
		Actor:    entity.SystemActor,
		Mutate: func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = entity.SystemActor
			next.Reason = "deadline passed without submission"
			next.UpdatedAt = now
		},
		Penalty: &workflow.PenaltyRequest{
			InstanceKey: key,
			Reason:      entity.ReasonFailed,
			Points:      def.Penalty.Points,
			Category:    def.PenaltyCategory(key.Window),
			EntityID:    inst.PenaltyTarget(),
		},
	})
	switch {
	case err == nil:
		report.Changed++
		s.logger.Info("Instance failed", "instance_key", key.String(), "deadline", inst.Deadline)
	case errors.Is(err, workflow.ErrConcurrentUpdate), errors.Is(err, domainwf.ErrInvalidTransition):
		// a submission won the race
		report.Skipped++
	default:
		s.logger.Error("Failed to fail overdue instance", "instance_key", key.String(), "error", err)
		report.Fail(key.String(), err)
	}
}

func (s *SweepService) reconcile(ctx context.Context, report *StepReport, def *obligation.Definition, inst *entity.Instance, sub entity.SubmissionState, now time.Time) {
	key := inst.Key
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = now
	}

	_, err := s.engine.Apply(ctx, workflow.Transition{
		Key:      key,
		Triggers: submitTriggers(def),
		Actor:    sub.SubmittedBy,
		Mutate:   applySubmission(def, submittedAt, now, sub.SubmittedBy, sub.PayloadRef),
	})
	switch {
	case err == nil:
		report.Changed++
		s.logger.Info("Reconciled submitted instance", "instance_key", key.String())
	case errors.Is(err, workflow.ErrConcurrentUpdate), errors.Is(err, domainwf.ErrInvalidTransition):
		report.Skipped++
	default:
		s.logger.Error("Failed to reconcile submission", "instance_key", key.String(), "error", err)
		report.Fail(key.String(), err)
	}
}

// submitTriggers returns the triggers for a submission of def's kind
func submitTriggers(def *obligation.Definition) []domainwf.Trigger {
	if def.HasReview() {
		return []domainwf.Trigger{domainwf.TriggerSubmit, domainwf.TriggerStartReview}
	}
	return []domainwf.Trigger{domainwf.TriggerSubmit}
}

// applySubmission records submission fields and, for review kinds, opens the review window at reviewFrom
func applySubmission(def *obligation.Definition, submittedAt, reviewFrom time.Time, by, payloadRef string) func(*entity.Instance) {
	return func(next *entity.Instance) {
		next.SubmittedAt = &submittedAt
		next.SubmittedBy = by
		next.PayloadRef = payloadRef
		next.UpdatedAt = reviewFrom
		if def.HasReview() {
			started := reviewFrom
			deadline := reviewFrom.Add(def.Review.Timeout)
			next.ReviewStarted = &started
			next.ReviewDeadline = &deadline
		}
	}
}
