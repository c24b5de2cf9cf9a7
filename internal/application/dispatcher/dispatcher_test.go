package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) HasError(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e == msg {
			return true
		}
	}
	return false
}

func newFailedEvent() *event.Event {
	return event.NewEvent(event.TypeInstanceFailed, "shift|shop|2026-10-17|morning", nil)
}

func TestSubscribe_AutoNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeInstanceFailed, noop)
	d.Subscribe(event.TypeInstanceFailed, noop)

	handlers := d.ListHandlers(event.TypeInstanceFailed)
	require.Len(t, handlers, 2)
	assert.Equal(t, "handler-0", handlers[0].Name)
	assert.Equal(t, "handler-1", handlers[1].Name)
	assert.Nil(t, handlers[0].Handler)
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.SubscribeNamed(event.TypeReminderDue, "a", noop)
	d.SubscribeNamed(event.TypeReminderDue, "b", noop)
	d.Unsubscribe(event.TypeReminderDue, "a")

	handlers := d.ListHandlers(event.TypeReminderDue)
	require.Len(t, handlers, 1)
	assert.Equal(t, "b", handlers[0].Name)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	d := NewDispatcher(WithLogger(&mockLogger{}))
	var calls []string

	d.SubscribeNamed(event.TypeInstanceFailed, "first", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.SubscribeNamed(event.TypeInstanceFailed, "second", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "second")
		return nil
	})

	err := d.Dispatch(context.Background(), newFailedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler first failed")
	assert.Equal(t, []string{"first"}, calls)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	d.Subscribe(event.TypeInstanceFailed, func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	err := d.Dispatch(context.Background(), newFailedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
	assert.True(t, logger.HasError("Handler panic recovered"))
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	var delivered atomic.Int32
	ctxErr := make(chan error, 1)

	d.Subscribe(event.TypeInstanceFailed, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		ctxErr <- ctx.Err()
		delivered.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, newFailedEvent())
	cancel()

	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), delivered.Load())
	assert.NoError(t, <-ctxErr)
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	require.NoError(t, d.Close())
	assert.Error(t, d.Close())
	assert.Error(t, d.Dispatch(context.Background(), newFailedEvent()))

	d.DispatchAsync(context.Background(), newFailedEvent())
	assert.True(t, logger.HasError("Cannot dispatch async event, dispatcher is closed"))
}

func TestDispatchAsync_FullQueueDeliversInline(t *testing.T) {
	d := NewDispatcher(WithWorkers(1), WithQueueSize(0))
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var delivered atomic.Int32

	d.SubscribeNamed(event.TypeInstanceFailed, "slow", func(ctx context.Context, evt *event.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		delivered.Add(1)
		return nil
	})

	// unbuffered queue with a worker parked in the handler: the next event overflows
	go d.DispatchAsync(context.Background(), newFailedEvent())
	<-started

	done := make(chan struct{})
	go func() {
		d.DispatchAsync(context.Background(), newFailedEvent())
		close(done)
	}()
	close(release)
	<-done

	require.NoError(t, d.Close())
	assert.Equal(t, int32(2), delivered.Load())
	s := d.Stats()
	assert.Equal(t, uint64(2), s.Delivered)
	assert.Equal(t, uint64(2), s.Queued+s.Inline)
}

func TestDispatchAsync_CountsFailures(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger), WithWorkers(2))
	d.SubscribeNamed(event.TypeInstanceFailed, "bad", func(ctx context.Context, evt *event.Event) error {
		return errors.New("lark down")
	})
	d.SubscribeNamed(event.TypeInstanceFailed, "good", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	d.DispatchAsync(context.Background(), newFailedEvent())
	require.NoError(t, d.Close())

	s := d.Stats()
	assert.Equal(t, uint64(1), s.Failed)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.True(t, logger.HasError("Async handler error"))
}

func TestDispatchAsync_HandlerTimeout(t *testing.T) {
	d := NewDispatcher(WithHandlerTimeout(20 * time.Millisecond))
	got := make(chan error, 1)
	d.Subscribe(event.TypeReminderDue, func(ctx context.Context, evt *event.Event) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeReminderDue, "shift|shop|2026-10-17|morning", nil))
	require.NoError(t, d.Close())
	assert.ErrorIs(t, <-got, context.DeadlineExceeded)
	assert.Equal(t, uint64(1), d.Stats().Failed)
}
