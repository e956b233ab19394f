// Package sqlite provides the single-file SQLite store behind the company,
// upload and sent-alert repositories: connection management and embedded
// golang-migrate schema migrations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 database/sql driver

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// SQLiteConfig holds the store configuration.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration

	// MaxOpenConns defaults to 1: SQLite serialises writers and a single
	// connection avoids SQLITE_BUSY under concurrent writes.
	MaxOpenConns int

	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool
}

// Connection wraps the sqlx handle of the store.
type Connection struct {
	db     *sqlx.DB
	cfg    SQLiteConfig
	logger logging.Logger
}

func buildDSN(cfg SQLiteConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		filepath.ToSlash(cfg.Path), busy.Milliseconds())
}

// Open creates the database directory if needed, applies pending migrations
// and returns a ready Connection.
func Open(ctx context.Context, cfg SQLiteConfig, log logging.Logger) (*Connection, error) {
	if cfg.Path == "" {
		return nil, errors.InvalidParam("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to create database directory").WithDetail(dir)
		}
	}
	if !cfg.SkipMigrations {
		if err := RunMigrations(cfg.Path); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "database migration failed")
		}
	}
	return NewConnection(ctx, cfg, log)
}

// NewConnection opens the SQLite file at cfg.Path and verifies it with a ping.
func NewConnection(ctx context.Context, cfg SQLiteConfig, log logging.Logger) (*Connection, error) {
	db, err := sqlx.Open("sqlite3", buildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to open database")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "database connection failed")
	}

	if log == nil {
		log = logging.NewNopLogger()
	}
	log.Info("opened sqlite store", logging.String("path", cfg.Path))

	return &Connection{db: db, cfg: cfg, logger: log}, nil
}

// NewConnectionWithDB wraps an existing handle (for testing).
func NewConnectionWithDB(db *sqlx.DB, log logging.Logger) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{db: db, logger: log}
}

// DB returns the underlying sqlx handle.
func (c *Connection) DB() *sqlx.DB {
	return c.db
}

// Path returns the database file path.
func (c *Connection) Path() string {
	return c.cfg.Path
}

// HealthCheck verifies the store answers queries.
func (c *Connection) HealthCheck(ctx context.Context) error {
	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "database health check failed")
	}
	return nil
}

// Checkpoint folds the WAL into the main database file so that a file copy
// (backup) sees every committed write.
func (c *Connection) Checkpoint(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "wal checkpoint failed")
	}
	return nil
}

// Stats returns database/sql pool statistics.
func (c *Connection) Stats() sql.DBStats {
	return c.db.Stats()
}

// Close closes the handle.
func (c *Connection) Close() error {
	c.logger.Info("closing sqlite store", logging.String("path", c.cfg.Path))
	return c.db.Close()
}
