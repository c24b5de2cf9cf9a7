package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background loop owned by a Group
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is a worker's name and whether it is currently started
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Group starts its workers in registration order and stops them in reverse.
// Starting is all or nothing: if one worker fails, the ones already started
// are stopped again.
type Group struct {
	logger *zap.Logger

	mu      sync.Mutex
	workers []Worker
	started []bool
	cancel  context.CancelFunc
}

func NewGroup(logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{logger: logger}
}

// Add registers a worker. Workers added after Start are not started.
func (g *Group) Add(w Worker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workers = append(g.workers, w)
	g.started = append(g.started, false)
	g.logger.Debug("Worker registered", zap.String("worker_name", w.Name()))
}

func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return fmt.Errorf("worker group already running")
	}
	runCtx, cancel := context.WithCancel(ctx)

	for i, w := range g.workers {
		if err := w.Start(runCtx); err != nil {
			g.logger.Error("Failed to start worker, rolling back",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			stopErr := g.stopStarted()
			cancel()
			return errors.Join(fmt.Errorf("start %s: %w", w.Name(), err), stopErr)
		}
		g.started[i] = true
		g.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}

	g.cancel = cancel
	return nil
}

// Stop stops every started worker and cancels the group context. Stopping an
// idle group is a no-op.
func (g *Group) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel == nil {
		return nil
	}
	err := g.stopStarted()
	g.cancel()
	g.cancel = nil
	return err
}

func (g *Group) stopStarted() error {
	var errs []error
	for i := len(g.workers) - 1; i >= 0; i-- {
		if !g.started[i] {
			continue
		}
		w := g.workers[i]
		if err := w.Stop(); err != nil {
			g.logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
			continue
		}
		g.started[i] = false
		g.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}
	return errors.Join(errs...)
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workers)
}

func (g *Group) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}

func (g *Group) Status() []Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Status, len(g.workers))
	for i, w := range g.workers {
		out[i] = Status{Name: w.Name(), Running: g.started[i]}
	}
	return out
}
