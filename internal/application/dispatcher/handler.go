package dispatcher

import (
	"context"

	"github.com/garyjia/retail-compliance/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// Publisher is the narrow publishing side used by services that emit events after commit
type Publisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}
