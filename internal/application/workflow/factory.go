package workflow

import (
	"context"

	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
)

type reviewPhaseKey struct{}

// WithReviewPhase marks whether the instance's kind has a review sub-workflow
func WithReviewPhase(ctx context.Context, hasReview bool) context.Context {
	return context.WithValue(ctx, reviewPhaseKey{}, hasReview)
}

func hasReviewPhase(ctx context.Context) bool {
	v, _ := ctx.Value(reviewPhaseKey{}).(bool)
	return v
}

var lifecycle = lifecycleTable()

func lifecycleTable() *domainwf.Table {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted).
		Permit(domainwf.TriggerFail, domainwf.StateFailed).
		Permit(domainwf.TriggerDecline, domainwf.StateDeclined)

	// Only kinds with a review phase enter under_review
	builder.Configure(domainwf.StateSubmitted).
		PermitIf(domainwf.TriggerStartReview, domainwf.StateUnderReview, hasReviewPhase)

	builder.Configure(domainwf.StateUnderReview).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	return builder.Table()
}

// BuildInstanceStateMachine returns a lifecycle machine positioned at initialState
func BuildInstanceStateMachine(initialState domainwf.State) domainwf.StateMachine {
	return lifecycle.Machine(initialState)
}

// LifecycleEdges lists the instance lifecycle transitions
func LifecycleEdges() []domainwf.Edge {
	return lifecycle.Edges()
}
