package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/retail-compliance/internal/domain/event"
)

// ErrClosed is returned once Close has been called
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes lifecycle events to subscribed handlers
type Dispatcher interface {
	Publisher

	Subscribe(eventType event.Type, handler Handler)
	SubscribeNamed(eventType event.Type, name string, handler Handler)
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs the handlers in subscription order on the caller's goroutine
	// and stops at the first error.
	Dispatch(ctx context.Context, evt *event.Event) error

	// ListHandlers returns the subscriptions for an event type without their funcs
	ListHandlers(eventType event.Type) []HandlerInfo

	// Stats reports async delivery counters
	Stats() Stats

	// Close stops accepting events and drains the async queue
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Stats counts async deliveries. Inline is the number of deliveries run on the
// publisher's goroutine because the queue was full.
type Stats struct {
	Queued    uint64
	Inline    uint64
	Delivered uint64
	Failed    uint64
}

type delivery struct {
	ctx  context.Context
	evt  *event.Event
	info HandlerInfo
}

type eventDispatcher struct {
	subsMu sync.RWMutex
	subs   map[event.Type][]HandlerInfo
	logger Logger

	workers        int
	queueSize      int
	handlerTimeout time.Duration

	// queueMu guards closed and sends on queue against Close closing it.
	queueMu sync.RWMutex
	closed  bool
	queue   chan delivery
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) { d.logger = logger }
}

// WithWorkers sets how many goroutines drain the async queue. Default 4.
func WithWorkers(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize bounds the async queue. Default 256.
func WithQueueSize(n int) Option {
	return func(d *eventDispatcher) {
		if n >= 0 {
			d.queueSize = n
		}
	}
}

// WithHandlerTimeout bounds each async handler call. Zero means no limit.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) { d.handlerTimeout = timeout }
}

// NewDispatcher creates a dispatcher and starts its async workers
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subs:      make(map[event.Type][]HandlerInfo),
		workers:   4,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.queue = make(chan delivery, d.queueSize)
	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.work()
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.subsMu.RLock()
	name := fmt.Sprintf("handler-%d", len(d.subs[eventType]))
	d.subsMu.RUnlock()
	d.SubscribeNamed(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subsMu.Lock()
	d.subs[eventType] = append(d.subs[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.subsMu.Unlock()

	d.logInfo("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	kept := d.subs[eventType][:0:0]
	for _, h := range d.subs[eventType] {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.subs[eventType] = kept
}

func (d *eventDispatcher) handlersFor(eventType event.Type) []HandlerInfo {
	d.subsMu.RLock()
	defer d.subsMu.RUnlock()
	return append([]HandlerInfo(nil), d.subs[eventType]...)
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	out := d.handlersFor(eventType)
	for i := range out {
		out[i].Handler = nil
	}
	return out
}

func (d *eventDispatcher) isClosed() bool {
	d.queueMu.RLock()
	defer d.queueMu.RUnlock()
	return d.closed
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.isClosed() {
		return ErrClosed
	}
	for _, info := range d.handlersFor(evt.Type) {
		if err := d.invoke(ctx, evt, info); err != nil {
			d.logError("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"error", err)
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}
	return nil
}

// DispatchAsync queues one delivery per handler. The deliveries run on a context
// detached from ctx's cancellation. When the queue is full the delivery runs on
// the caller's goroutine instead of being dropped.
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	handlers := d.handlersFor(evt.Type)
	detached := context.WithoutCancel(ctx)

	var overflow []delivery
	d.queueMu.RLock()
	if d.closed {
		d.queueMu.RUnlock()
		d.logError("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID)
		return
	}
	for _, info := range handlers {
		dl := delivery{ctx: detached, evt: evt, info: info}
		select {
		case d.queue <- dl:
			d.count(func(s *Stats) { s.Queued++ })
		default:
			overflow = append(overflow, dl)
		}
	}
	d.queueMu.RUnlock()

	for _, dl := range overflow {
		d.count(func(s *Stats) { s.Inline++ })
		d.deliver(dl)
	}
}

func (d *eventDispatcher) work() {
	defer d.wg.Done()
	for dl := range d.queue {
		d.deliver(dl)
	}
}

func (d *eventDispatcher) deliver(dl delivery) {
	ctx := dl.ctx
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	if err := d.invoke(ctx, dl.evt, dl.info); err != nil {
		d.count(func(s *Stats) { s.Failed++ })
		d.logError("Async handler error",
			"event_type", dl.evt.Type,
			"event_id", dl.evt.ID,
			"instance_key", dl.evt.InstanceKey,
			"handler_name", dl.info.Name,
			"error", err)
		return
	}
	d.count(func(s *Stats) { s.Delivered++ })
}

func (d *eventDispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *eventDispatcher) count(f func(*Stats)) {
	d.statsMu.Lock()
	f(&d.stats)
	d.statsMu.Unlock()
}

// Close waits for every queued delivery to finish
func (d *eventDispatcher) Close() error {
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	close(d.queue)
	d.queueMu.Unlock()

	d.logInfo("Draining async event queue", "pending", len(d.queue))
	d.wg.Wait()

	s := d.Stats()
	d.logInfo("Dispatcher closed",
		"delivered", s.Delivered,
		"failed", s.Failed,
		"inline", s.Inline)
	return nil
}

// invoke calls the handler and turns a panic into an error
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"panic", r)
		}
	}()
	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
