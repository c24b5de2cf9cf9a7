package workflow

import "context"

// StateMachine tracks the current state of one instance and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger has a transition whose guard passes
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire executes the trigger, moving to the first transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
