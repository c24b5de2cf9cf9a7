package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// BusyTimeout is how long a writer waits on a locked database. Defaults to 5s.
	BusyTimeout time.Duration
}

// DB is an open SQLite database in WAL mode
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
}

// Pragmas reports the settings the engine relies on
type Pragmas struct {
	JournalMode string
	ForeignKeys bool
	BusyTimeout time.Duration
}

// dsn builds the go-sqlite3 connection string. The pragmas are applied on every
// new pool connection, not just the first.
func dsn(cfg Config) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", busy.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// New opens the database, creating its directory, and checks that WAL mode took effect
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{DB: sqlDB, path: cfg.Path, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := db.Pragmas(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if p.JournalMode != "wal" {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database %s: journal mode is %q, want wal", cfg.Path, p.JournalMode)
	}

	logger.Info("Database connection established",
		zap.String("path", cfg.Path),
		zap.String("journal_mode", p.JournalMode),
		zap.Duration("busy_timeout", p.BusyTimeout))
	return db, nil
}

// Pragmas reads the effective connection settings
func (db *DB) Pragmas(ctx context.Context) (Pragmas, error) {
	var (
		p      Pragmas
		fk     int
		busyMS int64
	)
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&p.JournalMode); err != nil {
		return Pragmas{}, err
	}
	if err := db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil {
		return Pragmas{}, err
	}
	if err := db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&busyMS); err != nil {
		return Pragmas{}, err
	}
	p.JournalMode = strings.ToLower(p.JournalMode)
	p.ForeignKeys = fk == 1
	p.BusyTimeout = time.Duration(busyMS) * time.Millisecond
	return p, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("Closing database connection", zap.String("path", db.path))
	return db.DB.Close()
}
