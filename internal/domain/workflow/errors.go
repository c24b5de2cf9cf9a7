package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the current state does not permit a trigger
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guard for a trigger rejected it
	ErrGuardFailed = errors.New("guard condition failed")
)
