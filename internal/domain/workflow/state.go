package workflow

// State is the lifecycle state of an obligation instance
type State string

const (
	StatePending     State = "pending"
	StateSubmitted   State = "submitted"
	StateUnderReview State = "under_review"
	StateApproved    State = "approved"
	StateRejected    State = "rejected"
	StateFailed      State = "failed"
	StateDeclined    State = "declined"
)

var validStates = map[State]bool{
	StatePending:     true,
	StateSubmitted:   true,
	StateUnderReview: true,
	StateApproved:    true,
	StateRejected:    true,
	StateFailed:      true,
	StateDeclined:    true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
	StateFailed:   true,
	StateDeclined: true,
}

// reapableStates may be archived once their deadline has passed
var reapableStates = map[State]bool{
	StateFailed:   true,
	StateDeclined: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsReapable returns true if the reaper may archive instances in this state
func (s State) IsReapable() bool {
	return reapableStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// AllStates returns every lifecycle state in declaration order
func AllStates() []State {
	return []State{
		StatePending,
		StateSubmitted,
		StateUnderReview,
		StateApproved,
		StateRejected,
		StateFailed,
		StateDeclined,
	}
}
