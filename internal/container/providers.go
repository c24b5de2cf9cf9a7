package container

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/service"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	infraLark "github.com/garyjia/retail-compliance/internal/infrastructure/external/lark"
	"github.com/garyjia/retail-compliance/internal/infrastructure/metrics"
	"github.com/garyjia/retail-compliance/internal/infrastructure/notifier"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/memory"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/repository"
	"github.com/garyjia/retail-compliance/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/retail-compliance/internal/infrastructure/worker"
	"github.com/garyjia/retail-compliance/internal/report"
	"github.com/garyjia/retail-compliance/migrations"
	"github.com/garyjia/retail-compliance/pkg/database"
	"github.com/garyjia/retail-compliance/pkg/utils"
)

// SubmissionRepository is both sides of the submission store
type SubmissionRepository interface {
	port.SubmissionStore
	port.SubmissionRecorder
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Instance       port.InstanceRepository
	Penalty        port.PenaltyRepository
	Notification   port.NotificationRepository
	SchedulerState port.SchedulerStateRepository
	Entity         port.EntityRepository
	Submission     SubmissionRepository
}

// DatabaseBundle holds the store and its lifecycle hooks.
type DatabaseBundle struct {
	TxManager    port.TransactionManager
	Repositories *RepositoryBundle
	Ping         func(ctx context.Context) error
	Close        func() error
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Submission   *service.SubmissionService
	Penalty      *service.PenaltyService
	Notification *service.NotificationService
	TickRunner   *service.TickRunner
	Exporter     *report.PenaltyExporter
}

// ProvideDatabase opens the configured store. SQLite databases are migrated
// from the embedded migrations unless a migrations directory is configured.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		store := memory.NewStore()
		return &DatabaseBundle{
			TxManager: store,
			Repositories: &RepositoryBundle{
				Instance:       store.Instances(),
				Penalty:        store.Penalties(),
				Notification:   store.Notifications(),
				SchedulerState: store.SchedulerState(),
				Entity:         store.Entities(),
				Submission:     store.Submissions(),
			},
			Ping:  func(context.Context) error { return nil },
			Close: func() error { return nil },
		}, nil
	}

	rawDB, err := OpenAndMigrate(cfg, logger)
	if err != nil {
		return nil, err
	}

	db := sqlite.NewDB(rawDB.DB, logger)
	return &DatabaseBundle{
		TxManager:    db,
		Repositories: ProvideRepositories(db, logger),
		Ping:         rawDB.PingContext,
		Close:        rawDB.Close,
	}, nil
}

// OpenAndMigrate opens the SQLite database and applies pending migrations
func OpenAndMigrate(cfg *DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	rawDB, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	migrator := database.NewMigrator(rawDB, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.MigrateDir(ctx, cfg.MigrationsDir)
	} else {
		err = migrator.Migrate(ctx, migrations.FS)
	}
	if err != nil {
		_ = rawDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return rawDB, nil
}

// ProvideRepositories creates all SQLite repositories.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Instance:       repository.NewInstanceRepository(db, logger),
		Penalty:        repository.NewPenaltyRepository(db, logger),
		Notification:   repository.NewNotificationRepository(db, logger),
		SchedulerState: repository.NewSchedulerStateRepository(db, logger),
		Entity:         repository.NewEntityRepository(db, logger),
		Submission:     repository.NewSubmissionRepository(db, logger),
	}
}

// ProvideCatalog loads the obligation catalog from file, or the built-in one.
func ProvideCatalog(cfg *ObligationsConfig, logger *zap.Logger) (*obligation.Catalog, error) {
	if cfg == nil || cfg.File == "" {
		logger.Info("Using built-in obligation catalog")
		return obligation.DefaultCatalog(), nil
	}
	if _, err := os.Stat(cfg.File); err != nil {
		return nil, fmt.Errorf("obligation catalog %s: %w", cfg.File, err)
	}
	catalog, err := obligation.LoadCatalogFile(cfg.File)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded obligation catalog",
		zap.String("file", cfg.File),
		zap.Strings("kinds", catalog.Kinds()))
	return catalog, nil
}

// ProvideNotifier creates the Lark messenger, or a log-only notifier when Lark is disabled.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.Notifier {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Lark disabled, notifications are logged only")
		return notifier.NewLogNotifier(logger.Named("notifier"))
	}
	client := infraLark.NewClient(infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		AdminChatID:   cfg.AdminChatID,
		ReceiveIDType: cfg.ReceiveIDType,
	}, logger)
	return infraLark.NewMessenger(client, logger.Named("lark"))
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
		dispatcher.WithHandlerTimeout(30*time.Second),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos        *RepositoryBundle
	TxManager    port.TransactionManager
	Catalog      *obligation.Catalog
	Resolver     *obligation.Resolver
	Dispatcher   dispatcher.Dispatcher
	Notifier     port.Notifier
	Metrics      *metrics.Metrics
	Notification NotificationConfig
	Clock        port.Clock
	Logger       *zap.Logger
}

// ProvideServices creates the engine, the lifecycle steps and the tick runner,
// and subscribes notification and metrics handlers to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	log := utils.NewKVLogger(deps.Logger)
	repos := deps.Repos

	var m service.Metrics
	if deps.Metrics != nil {
		m = deps.Metrics
	}

	penalties := service.NewPenaltyService(repos.Penalty, deps.Clock, m, log)
	engine := workflow.NewEngine(repos.Instance, deps.TxManager, deps.Catalog,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithPenaltyIssuer(penalties),
	)

	notifications := service.NewNotificationService(deps.Notifier, repos.Notification, m, log,
		service.WithRateLimit(deps.Notification.RatePerSecond, deps.Notification.Burst),
		service.WithNotificationClock(deps.Clock),
	)
	service.NewNotificationHandler(notifications, repos.Entity, deps.Catalog, log).Register(deps.Dispatcher)
	service.RegisterTransitionMetrics(deps.Dispatcher, m)

	runner := service.NewTickRunner(service.TickRunnerDeps{
		Generator: service.NewGeneratorService(repos.Entity, repos.Instance, deps.Catalog, deps.Resolver, deps.Dispatcher, log),
		Sweeper:   service.NewSweepService(repos.Instance, repos.Submission, engine, deps.Catalog, log),
		Reviews:   service.NewReviewTimeoutService(repos.Instance, engine, deps.Catalog, log),
		Reminders: service.NewReminderService(repos.Instance, deps.Catalog, deps.Resolver, deps.Dispatcher, log),
		Reaper:    service.NewReaperService(repos.Instance, repos.SchedulerState, deps.TxManager, deps.Resolver, deps.Dispatcher, log),
		State:     repos.SchedulerState,
		Resolver:  deps.Resolver,
		Clock:     deps.Clock,
		Metrics:   m,
		Logger:    log,
	})

	return &ServiceBundle{
		Submission:   service.NewSubmissionService(repos.Instance, repos.Submission, engine, deps.Catalog, deps.Clock, log),
		Penalty:      penalties,
		Notification: notifications,
		TickRunner:   runner,
		Exporter:     report.NewPenaltyExporter(repos.Penalty, deps.Logger.Named("report")),
	}, nil
}

// ProvideWorkers creates the worker group with the tick scheduler registered.
func ProvideWorkers(cfg *SchedulerConfig, runner worker.TickRunner, logger *zap.Logger) *worker.Group {
	group := worker.NewGroup(logger)
	if cfg.Enabled {
		group.Add(worker.NewScheduler(worker.SchedulerConfig{
			Interval:     cfg.Interval,
			InitialDelay: cfg.InitialDelay,
			TickTimeout:  cfg.TickTimeout,
		}, runner, logger.Named("scheduler")))
	}
	return group
}

// SeedDirectory upserts the configured entities. Kinds missing from the catalog are logged and kept.
func SeedDirectory(ctx context.Context, repo port.EntityRepository, catalog *obligation.Catalog, entities []entity.Entity, logger *zap.Logger) error {
	for _, e := range entities {
		for _, kind := range e.ObligationKinds {
			if _, ok := catalog.Get(kind); !ok {
				logger.Warn("Entity references unknown obligation kind",
					zap.String("entity_id", e.ID),
					zap.String("kind", kind))
			}
		}
		if err := repo.Upsert(ctx, e); err != nil {
			return fmt.Errorf("seed entity %s: %w", e.ID, err)
		}
	}
	if len(entities) > 0 {
		logger.Info("Directory seeded", zap.Int("entities", len(entities)))
	}
	return nil
}
