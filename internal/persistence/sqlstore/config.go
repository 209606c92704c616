package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/room-timetable/internal/changefeed"
)

const (
	// DriverSQLite selects the embedded modernc.org/sqlite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the lib/pq driver.
	DriverPostgres = "postgres"
)

// Config holds connection settings for either supported driver.
type Config struct {
	Driver string
	DSN    string

	// SQLite only.
	BusyTimeout       time.Duration
	EnableForeignKeys bool
	JournalMode       string
	Synchronous       string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// NotifyChannel is the Postgres NOTIFY channel; empty uses changefeed.DefaultChannel.
	NotifyChannel string

	Retry RetryConfig
}

// DefaultSQLiteConfig returns settings suited to a single-process SQLite file.
func DefaultSQLiteConfig(dsn string) Config {
	return Config{
		Driver:            DriverSQLite,
		DSN:               dsn,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		MaxOpenConns:      1,
		MaxIdleConns:      1,
		Retry:             DefaultRetryConfig(),
	}
}

// DefaultPostgresConfig returns settings for a Postgres server.
func DefaultPostgresConfig(dsn string) Config {
	return Config{
		Driver:          DriverPostgres,
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		NotifyChannel:   changefeed.DefaultChannel,
		Retry:           DefaultRetryConfig(),
	}
}

// Validate checks the configuration before a connection is attempted.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("sqlstore: unsupported driver %q", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("sqlstore: dsn is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("sqlstore: connection limits must not be negative")
	}
	return nil
}

func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.Driver == DriverSQLite {
		if err := applyPragmas(ctx, db, cfg); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s database: %w", cfg.Driver, err)
	}

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, cfg Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+cfg.JournalMode)
	}
	if cfg.Synchronous != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+cfg.Synchronous)
	}
	if cfg.EnableForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlstore: %s: %w", pragma, err)
		}
	}
	return nil
}

// ensureSQLiteDir creates the parent directory of a file DSN.
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sqlstore: create database directory %s: %w", dir, err)
	}
	return nil
}
