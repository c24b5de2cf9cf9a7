package config

import (
	"github.com/garyjia/retail-compliance/internal/container"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	entities := make([]entity.Entity, 0, len(c.Directory.Entities))
	for _, e := range c.Directory.Entities {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		entities = append(entities, entity.Entity{
			ID:              e.ID,
			Name:            e.Name,
			NotifyID:        e.NotifyID,
			ObligationKinds: e.Kinds,
			Active:          active,
		})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			AdminChatID:   c.Lark.AdminChatID,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Scheduler: container.SchedulerConfig{
			Enabled:      c.Scheduler.Enabled,
			Interval:     c.Scheduler.Interval,
			InitialDelay: c.Scheduler.InitialDelay,
			TickTimeout:  c.Scheduler.TickTimeout,
		},
		Clock:       container.ClockConfig{UTCOffsetHours: c.Clock.UTCOffsetHours},
		Obligations: container.ObligationsConfig{File: c.Obligations.File},
		Notification: container.NotificationConfig{
			RatePerSecond: c.Notification.RatePerSecond,
			Burst:         c.Notification.Burst,
		},
		Directory: container.DirectoryConfig{Entities: entities},
	}
}

// LoggerConfig converts the logger section for utils.NewLogger
func (c *Config) LoggerConfig(service string) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		Service:    service,
	}
}
