package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/container"
	httpapi "github.com/garyjia/retail-compliance/internal/interfaces/http"
	"github.com/garyjia/retail-compliance/pkg/utils"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tick scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cc := cfg.ToContainerConfig()
			if noScheduler {
				cc.Scheduler.Enabled = false
			}
			return serve(cmd.Context(), cc, logger)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without the periodic tick")
	return cmd
}

func serve(parent context.Context, cfg *container.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting retail compliance engine",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("scheduler", cfg.Scheduler.Enabled))

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	services := c.Services()
	kv := utils.NewKVLogger(logger)
	handlers := httpapi.NewHandlers(httpapi.HandlerDeps{
		Instances:     services.Submission,
		Sweeps:        services.TickRunner,
		Penalties:     services.Exporter,
		Notifications: services.Notification,
		Health:        c,
		Version:       version,
		Logger:        kv,
	})

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.AdminToken = cfg.Server.AdminToken
	if cfg.Server.ReadTimeout > 0 {
		serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	}

	server := httpapi.NewServer(serverCfg, handlers, c.Metrics().Handler(), kv)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server exited successfully")
	return nil
}
