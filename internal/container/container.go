package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	"github.com/garyjia/retail-compliance/internal/infrastructure/metrics"
	"github.com/garyjia/retail-compliance/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger
	clock  port.Clock

	// Infrastructure
	database *DatabaseBundle
	notifier port.Notifier
	metrics  *metrics.Metrics

	// Domain
	catalog  *obligation.Catalog
	resolver *obligation.Resolver

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.Group

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures a Container
type Option func(*Container)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clock port.Clock) Option {
	return func(c *Container) {
		c.clock = clock
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
		clock:  port.SystemClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Obligation catalog and directory seed
// 3. Notifier and metrics
// 4. Event dispatcher and application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.config.Database.Driver))

	if err := c.initCatalog(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize obligation catalog: %w", err)
	}

	c.notifier = ProvideNotifier(&c.config.Lark, c.logger)
	c.metrics = metrics.New()

	if err := c.initServices(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.workers = ProvideWorkers(&c.config.Scheduler, c.services.TickRunner, c.logger)
	if err := c.workers.Start(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Len()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close tears down in reverse start order: workers first so no tick starts
// against a closing store, then the dispatcher drains pending notifications,
// then the database.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Shutting down")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"workers", func() error {
			if c.workers == nil {
				return nil
			}
			return c.workers.Stop()
		}},
		{"context", func() error {
			if c.cancel != nil {
				c.cancel()
			}
			return nil
		}},
		{"dispatcher", func() error {
			if c.dispatcher == nil {
				return nil
			}
			return c.dispatcher.Close()
		}},
		{"database", c.closeDatabase},
	}

	var errs []error
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.logger.Error("Shutdown step failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	c.logger.Info("Shutdown complete")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Ping checks the backing store
func (c *Container) Ping(ctx context.Context) error {
	if c.database == nil {
		return fmt.Errorf("%w: not initialized", port.ErrStoreUnavailable)
	}
	if err := c.database.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}
	return nil
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	if err := c.Ping(ctx); err != nil {
		set("database", false, err.Error())
	} else {
		set("database", true, "")
	}

	switch {
	case c.workers == nil:
		set("workers", false, "not initialized")
	case c.config.Scheduler.Enabled && !c.workers.Running():
		set("workers", false, "stopped")
	default:
		set("workers", true, fmt.Sprintf("worker count: %d", c.workers.Len()))
	}
	if c.workers != nil && c.config.Scheduler.Enabled {
		for _, w := range c.workers.Status() {
			set("worker:"+w.Name, w.Running, "")
		}
	}

	if c.dispatcher != nil {
		st := c.dispatcher.Stats()
		set("dispatcher", true, fmt.Sprintf("delivered %d, failed %d, inline %d", st.Delivered, st.Failed, st.Inline))
	} else {
		set("dispatcher", false, "not initialized")
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	return nil
}

func (c *Container) initCatalog() error {
	catalog, err := ProvideCatalog(&c.config.Obligations, c.logger)
	if err != nil {
		return err
	}
	c.catalog = catalog
	c.resolver = obligation.NewResolver(c.config.Clock.UTCOffsetHours)

	return SeedDirectory(c.ctx, c.database.Repositories.Entity, catalog, c.config.Directory.Entities, c.logger)
}

func (c *Container) initServices() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	services, err := ProvideServices(&ServiceDeps{
		Repos:        c.database.Repositories,
		TxManager:    c.database.TxManager,
		Catalog:      c.catalog,
		Resolver:     c.resolver,
		Dispatcher:   disp,
		Notifier:     c.notifier,
		Metrics:      c.metrics,
		Notification: c.config.Notification,
		Clock:        c.clock,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) closeDatabase() error {
	if c.database == nil || c.database.Close == nil {
		return nil
	}
	if err := c.database.Close(); err != nil {
		return err
	}
	c.database = nil
	return nil
}

func (c *Container) Repositories() *RepositoryBundle {
	if c.database == nil {
		return nil
	}
	return c.database.Repositories
}

func (c *Container) Catalog() *obligation.Catalog {
	return c.catalog
}

func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

func (c *Container) Services() *ServiceBundle {
	return c.services
}

func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

func (c *Container) Workers() *worker.Group {
	return c.workers
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

func (c *Container) Config() *Config {
	return c.config
}
