package service

import (
	"context"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/domain/event"
)

// RegisterTransitionMetrics counts every state transition announced on d
func RegisterTransitionMetrics(d dispatcher.Dispatcher, metrics Metrics) {
	m := orNopMetrics(metrics)
	count := func(ctx context.Context, evt *event.Event) error {
		m.IncTransition(evt.GetPayloadString(event.KeyFromState), evt.GetPayloadString(event.KeyToState))
		return nil
	}
	for _, t := range []event.Type{
		event.TypeInstanceSubmitted,
		event.TypeInstanceFailed,
		event.TypeInstanceDeclined,
		event.TypeReviewStarted,
		event.TypeReviewResolved,
		event.TypeReviewTimedOut,
	} {
		d.SubscribeNamed(t, "metrics-transition-"+t.String(), count)
	}
}
