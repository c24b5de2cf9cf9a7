package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated   Type = "instance.created"
	TypeInstanceSubmitted Type = "instance.submitted"
	TypeInstanceFailed    Type = "instance.failed"
	TypeInstanceDeclined  Type = "instance.declined"
	TypeReviewStarted     Type = "review.started"
	TypeReviewResolved    Type = "review.resolved"
	TypeReviewTimedOut    Type = "review.timed_out"
	TypePenaltyIssued     Type = "penalty.issued"
	TypeReminderDue       Type = "reminder.due"
	TypeInstancesReaped   Type = "instances.reaped"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeInstanceSubmitted,
		TypeInstanceFailed,
		TypeInstanceDeclined,
		TypeReviewStarted,
		TypeReviewResolved,
		TypeReviewTimedOut,
		TypePenaltyIssued,
		TypeReminderDue,
		TypeInstancesReaped:
		return true
	default:
		return false
	}
}
