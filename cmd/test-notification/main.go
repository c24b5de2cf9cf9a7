package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/config"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/infrastructure/external/lark"
)

// Sends one message through the Lark messenger using the configured
// credentials, independently of the engine.

func main() {
	var configPath, target, title, body string

	cmd := &cobra.Command{
		Use:          "test-notification",
		Short:        "Send a test message via Lark IM",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" {
				return fmt.Errorf("lark.app_id and lark.app_secret must be set")
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := lark.NewClient(lark.Config{
				AppID:         cfg.Lark.AppID,
				AppSecret:     cfg.Lark.AppSecret,
				AdminChatID:   cfg.Lark.AdminChatID,
				ReceiveIDType: cfg.Lark.ReceiveIDType,
			}, logger)
			messenger := lark.NewMessenger(client, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			n := entity.Notification{
				Target:   target,
				Title:    title,
				Body:     body,
				Metadata: map[string]string{"source": "test-notification"},
			}
			if err := messenger.Send(ctx, n); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %q to %s\n", title, target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&target, "to", entity.BroadcastTarget, "receive id, or the broadcast target for the admin chat")
	cmd.Flags().StringVar(&title, "title", "Compliance notification test", "message title")
	cmd.Flags().StringVar(&body, "body", "If you can read this, Lark delivery works.", "message body")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
