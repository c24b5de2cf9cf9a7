package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
)

// TickRunner runs the lifecycle steps in order. Its run-lock serializes the
// periodic tick with manual triggers so two runs never overlap.
type TickRunner struct {
	mu sync.Mutex

	generator *GeneratorService
	sweeper   *SweepService
	reviews   *ReviewTimeoutService
	reminders *ReminderService
	reaper    *ReaperService
	state     port.SchedulerStateRepository
	resolver  *obligation.Resolver
	clock     port.Clock
	metrics   Metrics
	logger    Logger
}

// TickRunnerDeps groups the collaborators of a TickRunner
type TickRunnerDeps struct {
	Generator *GeneratorService
	Sweeper   *SweepService
	Reviews   *ReviewTimeoutService
	Reminders *ReminderService
	Reaper    *ReaperService
	State     port.SchedulerStateRepository
	Resolver  *obligation.Resolver
	Clock     port.Clock
	Metrics   Metrics
	Logger    Logger
}

// NewTickRunner creates a new TickRunner
func NewTickRunner(deps TickRunnerDeps) *TickRunner {
	clock := deps.Clock
	if clock == nil {
		clock = port.SystemClock
	}
	return &TickRunner{
		generator: deps.Generator,
		sweeper:   deps.Sweeper,
		reviews:   deps.Reviews,
		reminders: deps.Reminders,
		reaper:    deps.Reaper,
		state:     deps.State,
		resolver:  deps.Resolver,
		clock:     clock,
		metrics:   orNopMetrics(deps.Metrics),
		logger:    orNop(deps.Logger),
	}
}

// RunTick runs generator, sweeper, review-timeout watcher, reminder pass and,
// once per local day, the reaper
func (r *TickRunner) RunTick(ctx context.Context) *TickReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runTick(ctx)
}

// TryRunTick runs a tick unless another run holds the lock
func (r *TickRunner) TryRunTick(ctx context.Context) (*TickReport, bool) {
	if !r.mu.TryLock() {
		return &TickReport{Skipped: true}, false
	}
	defer r.mu.Unlock()
	return r.runTick(ctx), true
}

func (r *TickRunner) runTick(ctx context.Context) *TickReport {
	now := r.clock.Now()
	date, _ := r.resolver.LocalDate(now)
	report := &TickReport{Date: date}

	r.observe(report, StepGenerate, func() *StepReport { return r.generator.Generate(ctx, now) })
	r.observe(report, StepSweep, func() *StepReport { return r.sweeper.Sweep(ctx, now, "") })
	r.observe(report, StepReviewTimeout, func() *StepReport { return r.reviews.ResolveTimeouts(ctx, now) })
	if r.reminders != nil {
		r.observe(report, StepRemind, func() *StepReport { return r.reminders.Remind(ctx, now) })
	}
	if r.reaper != nil {
		r.observe(report, StepReap, func() *StepReport { return r.reaper.Reap(ctx, now) })
	}

	if r.state != nil {
		if err := r.state.Set(ctx, entity.StateKeyLastTickAt, now.UTC().Format(time.RFC3339)); err != nil {
			r.logger.Warn("Failed to persist last tick time", "error", err)
		}
	}

	r.logReport("Tick completed", report)
	return report
}

// RunForDate sweeps the instances of one local date and resolves lapsed reviews,
// serialized with the periodic tick
func (r *TickRunner) RunForDate(ctx context.Context, date string) (*TickReport, error) {
	if _, err := r.resolver.Midnight(date); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	report := &TickReport{Date: date}
	r.observe(report, StepSweep, func() *StepReport { return r.sweeper.Sweep(ctx, now, date) })
	r.observe(report, StepReviewTimeout, func() *StepReport { return r.reviews.ResolveTimeouts(ctx, now) })

	r.logReport("Manual sweep completed", report)
	return report, nil
}

func (r *TickRunner) observe(report *TickReport, step string, fn func() *StepReport) {
	start := time.Now()
	sr := fn()
	r.metrics.ObserveStep(step, sr, time.Since(start))
	report.Steps = append(report.Steps, sr)

	if sr.Failed() > 0 {
		r.logger.Error("Step finished with errors",
			"step", step,
			"failed", sr.Failed(),
			"aborted", sr.Aborted(),
			"error", sr.Err(),
		)
	}
}

func (r *TickRunner) logReport(msg string, report *TickReport) {
	kv := []interface{}{"date", report.Date}
	for _, s := range report.Steps {
		kv = append(kv, s.Step+"_changed", s.Changed)
	}
	r.logger.Info(msg, kv...)
}
