package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// Engine identifies the SQL dialect behind a connection.
type Engine string

const (
	EngineSQLite   Engine = "sqlite3"
	EnginePostgres Engine = "postgres"

	// EngineAny is the fallback key used by EngineQuery.
	EngineAny Engine = ""

	driverPgx = "pgx"

	pgConnMaxIdleTime = 30 * time.Second
	pgConnMaxLifetime = 5 * time.Minute
)

// NewSQLiteDB opens a SQLite database at dbPath with the default connection options.
func NewSQLiteDB(dbPath string) (*sqlx.DB, error) {
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: dbPath}
	cfg.ApplyDefaults()
	return NewSQLiteDBFromConfig(cfg)
}

// NewFromConfig opens the database selected by cfg.Driver.
func NewFromConfig(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return NewSQLiteDBFromConfig(cfg)
	case config.DriverPostgres:
		return NewPostgresDBFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteDBFromConfig creates a new SQLite DB with the given configuration.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// NewPostgresDBFromConfig opens a Postgres connection pool through the pgx stdlib driver.
func NewPostgresDBFromConfig(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverPgx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxIdleTime(pgConnMaxIdleTime)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return db, nil
}

// EngineOf returns the dialect of an open handle.
func EngineOf(db *sqlx.DB) Engine {
	switch db.DriverName() {
	case driverPgx, "postgres", "pgx/v4":
		return EnginePostgres
	default:
		return EngineSQLite
	}
}

// Dialect returns the meddler dialect matching the handle.
func Dialect(db *sqlx.DB) *meddler.Database {
	if EngineOf(db) == EnginePostgres {
		return meddler.PostgreSQL
	}
	return meddler.SQLite
}

// EngineQuery picks the query written for the handle's engine, falling back to EngineAny.
// The returned query is rebound to the driver's placeholder style.
func EngineQuery(db *sqlx.DB, queries map[Engine]string) string {
	query, ok := queries[EngineOf(db)]
	if !ok || query == "" {
		query = queries[EngineAny]
	}
	return db.Rebind(query)
}
