package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/application/service"
)

type mockRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	ctxErr  atomic.Value
	once    sync.Once
}

func (m *mockRunner) RunTick(ctx context.Context) *service.TickReport {
	m.calls.Add(1)
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		<-m.block
	}
	if err := ctx.Err(); err != nil {
		m.ctxErr.Store(err)
	}
	return &service.TickReport{}
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	runner := &mockRunner{}
	s := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond}, runner, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	ticks, last := s.Stats()
	assert.GreaterOrEqual(t, ticks, 3)
	assert.False(t, last.IsZero())
	assert.False(t, s.IsRunning())
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: time.Hour, InitialDelay: time.Hour}, &mockRunner{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_StopDuringInitialDelay(t *testing.T) {
	runner := &mockRunner{}
	s := NewScheduler(SchedulerConfig{Interval: time.Hour, InitialDelay: time.Hour}, runner, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	runner := &mockRunner{block: make(chan struct{}), started: make(chan struct{})}
	s := NewScheduler(SchedulerConfig{Interval: time.Hour}, runner, nil)
	require.NoError(t, s.Start(context.Background()))
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Nil(t, runner.ctxErr.Load(), "shutdown must not cancel the running tick")
}

type fakeWorker struct {
	name     string
	startErr error
	order    *[]string
}

func (w *fakeWorker) Start(ctx context.Context) error { return w.startErr }
func (w *fakeWorker) Name() string                    { return w.name }
func (w *fakeWorker) Stop() error {
	*w.order = append(*w.order, w.name)
	return nil
}

func TestGroup_StopsInReverseOrder(t *testing.T) {
	var order []string
	g := NewGroup(nil)
	g.Add(&fakeWorker{name: "a", order: &order})
	g.Add(&fakeWorker{name: "b", order: &order})

	require.NoError(t, g.Start(context.Background()))
	assert.True(t, g.Running())
	assert.Error(t, g.Start(context.Background()))
	assert.Equal(t, []Status{{Name: "a", Running: true}, {Name: "b", Running: true}}, g.Status())

	require.NoError(t, g.Stop())
	assert.Equal(t, []string{"b", "a"}, order)
	assert.False(t, g.Running())
	require.NoError(t, g.Stop())
}

func TestGroup_StartFailureRollsBack(t *testing.T) {
	var order []string
	g := NewGroup(nil)
	g.Add(&fakeWorker{name: "first", order: &order})
	g.Add(&fakeWorker{name: "bad", startErr: errors.New("boom"), order: &order})
	g.Add(&fakeWorker{name: "never", order: &order})

	err := g.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start bad: boom")
	assert.Equal(t, []string{"first"}, order)
	assert.False(t, g.Running())
	assert.Equal(t, 3, g.Len())
	for _, st := range g.Status() {
		assert.False(t, st.Running, st.Name)
	}
}
