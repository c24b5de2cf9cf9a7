package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/memory"
)

// local builds an instant on 2026-10-17 in UTC+3
func local(hour, minute int) time.Time {
	return time.Date(2026, 10, 17, hour, minute, 0, 0, time.FixedZone("UTC+3", 3*3600))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(t event.Type) []*event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*event.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type countingMetrics struct {
	mu            sync.Mutex
	steps         map[string]int
	penalties     map[string]int
	notifications map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{steps: map[string]int{}, penalties: map[string]int{}, notifications: map[string]int{}}
}

func (m *countingMetrics) ObserveStep(step string, _ *StepReport, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step]++
}

func (m *countingMetrics) IncPenalty(reason, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.penalties[reason+"/"+outcome]++
}

func (m *countingMetrics) IncNotification(eventType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[eventType+"/"+status]++
}

func (m *countingMetrics) IncTransition(string, string) {}

type fixture struct {
	t        *testing.T
	now      time.Time
	store    *memory.Store
	catalog  *obligation.Catalog
	resolver *obligation.Resolver
	pub      *recordingPublisher
	metrics  *countingMetrics

	penalties   *PenaltyService
	engine      workflow.WorkflowEngine
	generator   *GeneratorService
	sweeper     *SweepService
	reviews     *ReviewTimeoutService
	reminders   *ReminderService
	reaper      *ReaperService
	submissions *SubmissionService
	runner      *TickRunner
}

func newFixture(t *testing.T, catalog *obligation.Catalog, entities ...entity.Entity) *fixture {
	t.Helper()
	if catalog == nil {
		catalog = obligation.DefaultCatalog()
	}
	f := &fixture{
		t:        t,
		now:      local(12, 0),
		store:    memory.NewStore(),
		catalog:  catalog,
		resolver: obligation.NewResolver(3),
		pub:      &recordingPublisher{},
		metrics:  newCountingMetrics(),
	}
	for _, e := range entities {
		require.NoError(t, f.store.Entities().Upsert(context.Background(), e))
	}

	clock := port.ClockFunc(func() time.Time { return f.now })
	f.penalties = NewPenaltyService(f.store.Penalties(), clock, f.metrics, nil)
	f.engine = workflow.NewEngine(f.store.Instances(), f.store, catalog,
		workflow.WithDispatcher(f.pub), workflow.WithPenaltyIssuer(f.penalties))
	f.generator = NewGeneratorService(f.store.Entities(), f.store.Instances(), catalog, f.resolver, f.pub, nil)
	f.sweeper = NewSweepService(f.store.Instances(), f.store.Submissions(), f.engine, catalog, nil)
	f.reviews = NewReviewTimeoutService(f.store.Instances(), f.engine, catalog, nil)
	f.reminders = NewReminderService(f.store.Instances(), catalog, f.resolver, f.pub, nil)
	f.reaper = NewReaperService(f.store.Instances(), f.store.SchedulerState(), f.store, f.resolver, f.pub, nil)
	f.submissions = NewSubmissionService(f.store.Instances(), f.store.Submissions(), f.engine, catalog, clock, nil)
	f.runner = NewTickRunner(TickRunnerDeps{
		Generator: f.generator,
		Sweeper:   f.sweeper,
		Reviews:   f.reviews,
		Reminders: f.reminders,
		Reaper:    f.reaper,
		State:     f.store.SchedulerState(),
		Resolver:  f.resolver,
		Clock:     clock,
		Metrics:   f.metrics,
	})
	return f
}

func shop(id string, kinds ...string) entity.Entity {
	return entity.Entity{ID: id, Name: id, NotifyID: "chat-" + id, ObligationKinds: kinds, Active: true}
}

func key(kind, entityID, window string) entity.InstanceKey {
	return entity.InstanceKey{Kind: kind, EntityID: entityID, Date: "2026-10-17", Window: window}
}

func (f *fixture) instance(k entity.InstanceKey) *entity.Instance {
	f.t.Helper()
	inst, err := f.store.Instances().GetByKey(context.Background(), k)
	require.NoError(f.t, err)
	return inst
}
