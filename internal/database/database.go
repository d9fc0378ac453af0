// Package database opens the SQL store behind the identity, refresh token and
// session repositories, and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver ("pgx")
	"github.com/jrsteele09/care-auth-server/internal/config"
	_ "github.com/mattn/go-sqlite3" // SQLite driver ("sqlite3")
)

const (
	dirPermissions    = 0750
	filePermissions   = 0600
	busyTimeoutMillis = 5000
	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute
)

// DB wraps a sql.DB with the dialect it speaks.
type DB struct {
	*sql.DB
	dialect Dialect
}

// New wraps an existing connection (tests use it with sqlmock).
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Open connects to the configured driver and verifies the connection.
func Open(ctx context.Context, cfg config.StorageConfig) (*DB, error) {
	switch cfg.GetStorageDriver() {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.GetSQLitePath())
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.GetPostgresDSN())
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.GetStorageDriver())
	}
}

// OpenSQLite opens (creating if needed) a SQLite file in WAL mode with
// foreign keys on. SQLite has a single writer, so the pool holds one connection.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeoutMillis)

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := New(sqlDB, SQLite)
	if err := db.ping(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, err
	}
	_ = os.Chmod(path, filePermissions)
	return db, nil
}

func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := New(sqlDB, Postgres)
	if err := db.ping(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, err
	}
	return db, nil
}

func (db *DB) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("verifying database connection: %w", err)
	}
	return nil
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
