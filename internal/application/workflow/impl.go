package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

type engineImpl struct {
	instanceRepo port.InstanceRepository
	txManager    port.TransactionManager
	catalog      *obligation.Catalog
	penalties    PenaltyIssuer
	publisher    dispatcher.Publisher
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event publisher used after commit
func WithDispatcher(p dispatcher.Publisher) EngineOption {
	return func(e *engineImpl) {
		e.publisher = p
	}
}

// WithPenaltyIssuer sets the ledger writer used for transitions that carry a penalty
func WithPenaltyIssuer(p PenaltyIssuer) EngineOption {
	return func(e *engineImpl) {
		e.penalties = p
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	instanceRepo port.InstanceRepository,
	txManager port.TransactionManager,
	catalog *obligation.Catalog,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		instanceRepo: instanceRepo,
		txManager:    txManager,
		catalog:      catalog,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// GetStateMachine returns a state machine positioned at the stored state
func (e *engineImpl) GetStateMachine(ctx context.Context, key entity.InstanceKey) (domainwf.StateMachine, error) {
	instance, err := e.instanceRepo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !instance.State.IsValid() {
		return nil, fmt.Errorf("%w: %s has state %q", domainwf.ErrInvalidState, key, instance.State)
	}
	return BuildInstanceStateMachine(instance.State), nil
}

// GetCurrentState returns the current state of an instance
func (e *engineImpl) GetCurrentState(ctx context.Context, key entity.InstanceKey) (domainwf.State, error) {
	instance, err := e.instanceRepo.GetByKey(ctx, key)
	if err != nil {
		return "", err
	}
	return instance.State, nil
}

// Apply executes the transition inside one transaction
func (e *engineImpl) Apply(ctx context.Context, t Transition) (*Result, error) {
	if len(t.Triggers) == 0 {
		return nil, fmt.Errorf("transition for %s has no triggers", t.Key)
	}
	def, ok := e.catalog.Get(t.Key.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", obligation.ErrInvalidDefinition, t.Key.Kind)
	}

	result := &Result{}
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := e.instanceRepo.GetByKey(txCtx, t.Key)
		if err != nil {
			return err
		}
		result.From = instance.State

		machine := BuildInstanceStateMachine(instance.State)
		guardCtx := WithReviewPhase(txCtx, def.HasReview())
		for _, trigger := range t.Triggers {
			if err := machine.Fire(guardCtx, trigger); err != nil {
				if errors.Is(err, domainwf.ErrGuardFailed) {
					return fmt.Errorf("%w: %v", domainwf.ErrInvalidTransition, err)
				}
				return err
			}
		}

		next := instance.Clone()
		next.State = machine.State()
		if t.Mutate != nil {
			t.Mutate(next)
		}

		swapped, err := e.instanceRepo.CompareAndSet(txCtx, instance.State, instance.Version, next)
		if err != nil {
			return err
		}
		if !swapped {
			return fmt.Errorf("%w: %s", ErrConcurrentUpdate, t.Key)
		}

		if t.Penalty != nil && !t.Penalty.Points.IsZero() {
			if e.penalties == nil {
				return fmt.Errorf("transition for %s carries a penalty but no issuer is configured", t.Key)
			}
			req := *t.Penalty
			if req.EntityID == "" {
				req.EntityID = next.PenaltyTarget()
			}
			outcome, err := e.penalties.IssuePenalty(txCtx, req)
			if err != nil {
				return err
			}
			result.Penalty = outcome
			result.PenaltyRequest = &req
		}

		result.Instance = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Events = e.buildEvents(def, t, result)
	if e.publisher != nil {
		for _, evt := range result.Events {
			e.publisher.DispatchAsync(ctx, evt)
		}
	}

	return result, nil
}

func (e *engineImpl) buildEvents(def *obligation.Definition, t Transition, res *Result) []*event.Event {
	inst := res.Instance
	eventType := t.EventType
	if eventType == "" {
		eventType = defaultEventType(inst.State)
	}

	payload := map[string]interface{}{
		event.KeyEntityID:    inst.Key.EntityID,
		event.KeyKind:        inst.Key.Kind,
		event.KeyWindow:      inst.Key.Window,
		event.KeyDate:        inst.Key.Date,
		event.KeyFromState:   res.From.String(),
		event.KeyToState:     inst.State.String(),
		event.KeyActor:       t.Actor,
		event.KeyReason:      inst.Reason,
		event.KeyNotifyAdmin: def.NotifyAdmin,
	}
	if inst.Rating != nil {
		payload[event.KeyRating] = *inst.Rating
	}
	if inst.ReviewDeadline != nil {
		payload[event.KeyDeadline] = inst.ReviewDeadline.Format("2006-01-02 15:04")
	}

	primary := event.NewEvent(eventType, inst.Key.String(), payload)
	events := []*event.Event{primary}

	if res.Penalty == entity.PenaltyCreated {
		events = append(events, event.NewEventWithCorrelation(event.TypePenaltyIssued, inst.Key.String(), map[string]interface{}{
			event.KeyEntityID: res.PenaltyRequest.EntityID,
			event.KeyKind:     inst.Key.Kind,
			event.KeyWindow:   inst.Key.Window,
			event.KeyDate:     inst.Key.Date,
			event.KeyReason:   res.PenaltyRequest.Reason.String(),
			event.KeyPoints:   res.PenaltyRequest.Points.String(),
			event.KeyCategory: res.PenaltyRequest.Category,
		}, primary.CorrelationID))
	}
	return events
}

func defaultEventType(state domainwf.State) event.Type {
	switch state {
	case domainwf.StateSubmitted:
		return event.TypeInstanceSubmitted
	case domainwf.StateUnderReview:
		return event.TypeReviewStarted
	case domainwf.StateFailed:
		return event.TypeInstanceFailed
	case domainwf.StateDeclined:
		return event.TypeInstanceDeclined
	default:
		return event.TypeReviewResolved
	}
}
