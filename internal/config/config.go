package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes environment overrides, e.g. COMPLIANCE_SERVER_PORT
const EnvPrefix = "COMPLIANCE"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Clock        ClockConfig        `mapstructure:"clock"`
	Obligations  ObligationsConfig  `mapstructure:"obligations"`
	Notification NotificationConfig `mapstructure:"notification"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Export       ExportConfig       `mapstructure:"export"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AdminToken, when set, is required as a bearer token on /api/v1/admin
	AdminToken string `mapstructure:"admin_token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	AdminChatID   string `mapstructure:"admin_chat_id"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// SchedulerConfig holds tick scheduler configuration
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	TickTimeout  time.Duration `mapstructure:"tick_timeout"`
}

// ClockConfig holds the local timezone offset
type ClockConfig struct {
	UTCOffsetHours int `mapstructure:"utc_offset_hours"`
}

// ObligationsConfig holds the obligation catalog location
type ObligationsConfig struct {
	File string `mapstructure:"file"`
}

// NotificationConfig holds notification throttling
type NotificationConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// ExportConfig holds where generated reports are archived
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// DirectoryConfig lists statically configured entities
type DirectoryConfig struct {
	Entities []EntityConfig `mapstructure:"entities"`
}

// EntityConfig is one statically configured entity. Active defaults to true.
type EntityConfig struct {
	ID       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	NotifyID string   `mapstructure:"notify_id"`
	Kinds    []string `mapstructure:"kinds"`
	Active   *bool    `mapstructure:"active"`
}

// LoadDotEnv loads KEY=VALUE pairs from files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/compliance.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "open_id")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 5*time.Minute)
	v.SetDefault("scheduler.initial_delay", 2*time.Second)
	v.SetDefault("scheduler.tick_timeout", 2*time.Minute)

	v.SetDefault("clock.utc_offset_hours", 3)

	v.SetDefault("notification.rate_per_second", 5.0)
	v.SetDefault("notification.burst", 10)

	v.SetDefault("export.dir", "data/exports")
}

// bindEnvVars binds credentials to their conventional variable names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"lark.app_id":        "LARK_APP_ID",
		"lark.app_secret":    "LARK_APP_SECRET",
		"lark.admin_chat_id": "LARK_ADMIN_CHAT_ID",
		"server.admin_token": "COMPLIANCE_ADMIN_TOKEN",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}

	if c.Clock.UTCOffsetHours < -12 || c.Clock.UTCOffsetHours > 14 {
		return fmt.Errorf("clock.utc_offset_hours out of range: %d", c.Clock.UTCOffsetHours)
	}

	seen := make(map[string]bool)
	for i, e := range c.Directory.Entities {
		if e.ID == "" {
			return fmt.Errorf("directory.entities[%d].id is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("directory.entities: duplicate id %q", e.ID)
		}
		seen[e.ID] = true
	}

	return nil
}
