package workflow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

// ErrConcurrentUpdate is returned when another writer changed the instance between read and write
var ErrConcurrentUpdate = errors.New("instance changed concurrently")

// PenaltyIssuer writes penalties inside the caller's transaction
type PenaltyIssuer interface {
	IssuePenalty(ctx context.Context, req PenaltyRequest) (entity.PenaltyOutcome, error)
}

// PenaltyRequest describes a penalty to issue alongside a transition
type PenaltyRequest struct {
	InstanceKey entity.InstanceKey
	Reason      entity.PenaltyReason
	Points      decimal.Decimal
	Category    string
	EntityID    string
}

// Transition is one engine-owned state change of an instance
type Transition struct {
	Key entity.InstanceKey

	// Triggers are fired in order; all must succeed
	Triggers []domainwf.Trigger

	// Actor is recorded in the event payload and, for resolutions, on the instance
	Actor string

	// Mutate applies field changes to the instance after the triggers fired
	Mutate func(inst *entity.Instance)

	// Penalty is issued in the same transaction when non-nil and non-zero
	Penalty *PenaltyRequest

	// EventType overrides the event published for the final state
	EventType event.Type
}

// Result is what a committed transition produced
type Result struct {
	Instance *entity.Instance
	From     domainwf.State
	Penalty  entity.PenaltyOutcome
	Events   []*event.Event

	// PenaltyRequest is the request actually issued, with the target resolved
	PenaltyRequest *PenaltyRequest
}

// WorkflowEngine owns every state change of obligation instances
type WorkflowEngine interface {
	// Apply runs a transition: state change and penalty commit together, events are
	// published after commit
	Apply(ctx context.Context, t Transition) (*Result, error)

	// GetStateMachine returns a state machine positioned at the instance's stored state
	GetStateMachine(ctx context.Context, key entity.InstanceKey) (domainwf.StateMachine, error)

	// GetCurrentState returns the current state of an instance
	GetCurrentState(ctx context.Context, key entity.InstanceKey) (domainwf.State, error)
}
