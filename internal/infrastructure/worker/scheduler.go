package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/service"
)

// TickRunner runs one lifecycle tick
type TickRunner interface {
	RunTick(ctx context.Context) *service.TickReport
}

// SchedulerConfig holds configuration for the tick scheduler
type SchedulerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// TickTimeout bounds one tick. Zero means no bound.
	TickTimeout time.Duration
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     5 * time.Minute,
		InitialDelay: 2 * time.Second,
		TickTimeout:  2 * time.Minute,
	}
}

// Scheduler runs the tick runner on a fixed interval. A tick that is in
// progress when Stop is called runs to completion.
type Scheduler struct {
	config SchedulerConfig
	runner TickRunner
	logger *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	ticks     int
	lastTick  time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(config SchedulerConfig, runner TickRunner, logger *zap.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Name returns the worker name for identification
func (s *Scheduler) Name() string {
	return "TickScheduler"
}

// Start begins the scheduling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("initial_delay", s.config.InitialDelay))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stats returns the number of completed ticks and when the last one finished
func (s *Scheduler) Stats() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks, s.lastTick
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.config.InitialDelay > 0 {
		timer := time.NewTimer(s.config.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler loop context cancelled")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick detaches from the loop context so shutdown does not abort a running tick
func (s *Scheduler) tick(ctx context.Context) {
	tickCtx := context.WithoutCancel(ctx)
	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(tickCtx, s.config.TickTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tick panicked", zap.Any("panic", r))
		}
	}()

	report := s.runner.RunTick(tickCtx)

	s.mu.Lock()
	s.ticks++
	s.lastTick = time.Now()
	s.mu.Unlock()

	if report != nil && report.Err() != nil {
		s.logger.Warn("Tick completed with errors", zap.Error(report.Err()))
	}
}
