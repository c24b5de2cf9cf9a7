package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit      Trigger = "SUBMIT"
	TriggerStartReview Trigger = "START_REVIEW"
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
	TriggerFail        Trigger = "FAIL"
	TriggerDecline     Trigger = "DECLINE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
