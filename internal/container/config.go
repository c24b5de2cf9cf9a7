// Package container provides dependency injection and lifecycle management
// for the compliance lifecycle engine.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Lark         LarkConfig
	Server       ServerConfig
	Scheduler    SchedulerConfig
	Clock        ClockConfig
	Obligations  ObligationsConfig
	Notification NotificationConfig
	Directory    DirectoryConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite or memory
	Driver string

	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// LarkConfig holds Lark messaging settings.
type LarkConfig struct {
	// Enabled selects the Lark notifier; otherwise notifications are only logged
	Enabled       bool
	AppID         string
	AppSecret     string
	AdminChatID   string
	ReceiveIDType string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SchedulerConfig holds tick scheduler settings.
type SchedulerConfig struct {
	// Enabled registers the periodic tick worker on Start
	Enabled      bool
	Interval     time.Duration
	InitialDelay time.Duration
	TickTimeout  time.Duration
}

// ClockConfig fixes the local timezone of every deadline.
type ClockConfig struct {
	UTCOffsetHours int
}

// ObligationsConfig points at the obligation catalog.
type ObligationsConfig struct {
	// File is a YAML catalog; the built-in catalog is used when empty
	File string
}

// NotificationConfig throttles outbound notifications.
type NotificationConfig struct {
	// RatePerSecond <= 0 disables throttling
	RatePerSecond float64
	Burst         int
}

// DirectoryConfig lists entities seeded into the store at startup.
type DirectoryConfig struct {
	Entities []entity.Entity
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/compliance.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 0,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Interval:     5 * time.Minute,
			InitialDelay: 2 * time.Second,
			TickTimeout:  2 * time.Minute,
		},
		Clock: ClockConfig{UTCOffsetHours: 3},
		Notification: NotificationConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Clock.UTCOffsetHours < -12 || c.Clock.UTCOffsetHours > 14 {
		return fmt.Errorf("clock.utc_offset_hours out of range: %d", c.Clock.UTCOffsetHours)
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}

	for i, e := range c.Directory.Entities {
		if e.ID == "" {
			return fmt.Errorf("directory.entities[%d].id is required", i)
		}
	}

	return nil
}
