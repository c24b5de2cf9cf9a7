package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/compliance.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 3, cfg.Clock.UTCOffsetHours)
	assert.Equal(t, "open_id", cfg.Lark.ReceiveIDType)
	assert.Equal(t, 10, cfg.Notification.Burst)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
scheduler:
  interval: 30s
clock:
  utc_offset_hours: 5
obligations:
  file: configs/obligations.yaml
directory:
  entities:
    - id: shop-1
      name: Main street
      notify_id: ou_1
      kinds: [shift, recount]
    - id: shop-2
      active: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 5, cfg.Clock.UTCOffsetHours)
	assert.Equal(t, "configs/obligations.yaml", cfg.Obligations.File)
	require.Len(t, cfg.Directory.Entities, 2)
	assert.Equal(t, []string{"shift", "recount"}, cfg.Directory.Entities[0].Kinds)
	require.NotNil(t, cfg.Directory.Entities[1].Active)
	assert.False(t, *cfg.Directory.Entities[1].Active)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LARK_APP_ID", "cli_env")
	t.Setenv("LARK_APP_SECRET", "secret_env")
	t.Setenv("COMPLIANCE_SERVER_PORT", "7070")

	path := writeConfig(t, "lark:\n  enabled: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cli_env", cfg.Lark.AppID)
	assert.Equal(t, "secret_env", cfg.Lark.AppSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "lark:\n  enabled: true\n")
	t.Setenv("LARK_APP_ID", "")
	t.Setenv("LARK_APP_SECRET", "")
	_, err = Load(path)
	assert.ErrorContains(t, err, "lark.app_id")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Database:  DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Scheduler: SchedulerConfig{Enabled: true, Interval: time.Minute},
			Clock:     ClockConfig{UTCOffsetHours: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"missing path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"memory needs no path", func(c *Config) { c.Database.Driver = "memory"; c.Database.Path = "" }, ""},
		{"lark secret", func(c *Config) { c.Lark = LarkConfig{Enabled: true, AppID: "a"} }, "lark.app_secret"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		{"disabled scheduler", func(c *Config) { c.Scheduler = SchedulerConfig{} }, ""},
		{"offset", func(c *Config) { c.Clock.UTCOffsetHours = 15 }, "utc_offset_hours"},
		{"entity id", func(c *Config) { c.Directory.Entities = []EntityConfig{{Name: "x"}} }, "id is required"},
		{"duplicate entity", func(c *Config) {
			c.Directory.Entities = []EntityConfig{{ID: "a"}, {ID: "a"}}
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	inactive := false
	cfg := &Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8081},
		Database:  DatabaseConfig{Driver: "memory"},
		Lark:      LarkConfig{Enabled: true, AppID: "a", AppSecret: "s", AdminChatID: "oc_1"},
		Scheduler: SchedulerConfig{Enabled: true, Interval: time.Minute},
		Clock:     ClockConfig{UTCOffsetHours: 3},
		Directory: DirectoryConfig{Entities: []EntityConfig{
			{ID: "shop-1", Kinds: []string{"shift"}},
			{ID: "shop-2", Active: &inactive},
		}},
	}

	cc := cfg.ToContainerConfig()

	assert.Equal(t, "memory", cc.Database.Driver)
	assert.Equal(t, "oc_1", cc.Lark.AdminChatID)
	assert.Equal(t, 8081, cc.Server.Port)
	assert.Equal(t, time.Minute, cc.Scheduler.Interval)
	require.Len(t, cc.Directory.Entities, 2)
	assert.True(t, cc.Directory.Entities[0].Active)
	assert.Equal(t, []string{"shift"}, cc.Directory.Entities[0].ObligationKinds)
	assert.False(t, cc.Directory.Entities[1].Active)
	assert.NoError(t, cc.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("COMPLIANCE_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("COMPLIANCE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("COMPLIANCE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("COMPLIANCE_TEST_DOTENV"))
}
