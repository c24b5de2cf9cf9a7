package service

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// ReviewTimeoutService resolves instances whose review window lapsed
type ReviewTimeoutService struct {
	instances port.InstanceRepository
	engine    workflow.WorkflowEngine
	catalog   *obligation.Catalog
	logger    Logger
}

// NewReviewTimeoutService creates a new ReviewTimeoutService
func NewReviewTimeoutService(
	instances port.InstanceRepository,
	engine workflow.WorkflowEngine,
	catalog *obligation.Catalog,
	logger Logger,
) *ReviewTimeoutService {
	return &ReviewTimeoutService{
		instances: instances,
		engine:    engine,
		catalog:   catalog,
		logger:    orNop(logger),
	}
}

// ResolveTimeouts applies the kind's timeout policy to each under_review
// instance with review_started + timeout < now
func (s *ReviewTimeoutService) ResolveTimeouts(ctx context.Context, now time.Time) *StepReport {
	report := NewStepReport(StepReviewTimeout)

	reviewing, err := s.instances.ListByState(ctx, domainwf.StateUnderReview)
	if err != nil {
		report.Fail("list", err)
		return report
	}

	for _, inst := range reviewing {
		def, ok := s.catalog.Get(inst.Key.Kind)
		if !ok || !def.HasReview() {
			s.logger.Warn("Instance under review has no review phase", "instance_key", inst.Key.String())
			report.Skipped++
			continue
		}
		if !reviewExpired(inst, def, now) {
			continue
		}
		report.Examined++
		s.resolveOne(ctx, report, def, inst, now)
	}

	return report
}

func reviewExpired(inst *entity.Instance, def *obligation.Definition, now time.Time) bool {
	switch {
	case inst.ReviewStarted != nil:
		return inst.ReviewStarted.Add(def.Review.Timeout).Before(now)
	case inst.ReviewDeadline != nil:
		return inst.ReviewDeadline.Before(now)
	default:
		return inst.UpdatedAt.Add(def.Review.Timeout).Before(now)
	}
}

func (s *ReviewTimeoutService) resolveOne(ctx context.Context, report *StepReport, def *obligation.Definition, inst *entity.Instance, now time.Time) {
	key := inst.Key
	t := workflow.Transition{
		Key:       key,
		Actor:     entity.SystemActor,
		EventType: event.TypeReviewTimedOut,
	}

	switch def.Review.OnTimeout {
	case obligation.PolicyAutoApprove:
		rating := def.Review.DefaultRating
		t.Triggers = []domainwf.Trigger{domainwf.TriggerApprove}
		t.Mutate = func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = entity.SystemActor
			next.Reason = "review timed out, auto-approved"
			next.Rating = &rating
			next.UpdatedAt = now
		}
	case obligation.PolicyAutoReject:
		t.Triggers = []domainwf.Trigger{domainwf.TriggerReject}
		t.Mutate = func(next *entity.Instance) {
			next.ResolvedAt = &now
			next.ResolvedBy = entity.SystemActor
			next.Reason = "review timed out, auto-rejected"
			next.UpdatedAt = now
		}
		t.Penalty = &workflow.PenaltyRequest{
			InstanceKey: key,
			Reason:      entity.ReasonReviewTimeout,
			Points:      def.Penalty.Points,
			Category:    def.PenaltyCategory(key.Window),
			EntityID:    inst.PenaltyTarget(),
		}
	default:
		report.Skipped++
		return
	}

	_, err := s.engine.Apply(ctx, t)
	switch {
	case err == nil:
		report.Changed++
		s.logger.Info("Review timed out",
			"instance_key", key.String(),
			"policy", def.Review.OnTimeout,
		)
	case errors.Is(err, workflow.ErrConcurrentUpdate), errors.Is(err, domainwf.ErrInvalidTransition):
		// an admin resolved it first
		report.Skipped++
	default:
		s.logger.Error("Failed to resolve review timeout", "instance_key", key.String(), "error", err)
		report.Fail(key.String(), err)
	}
}
