package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Config selects and configures the database backend.
type Config struct {
	// URL is the PostgreSQL connection string. Empty selects SQLite.
	URL string
	// SQLitePath is the database file used in SQLite mode.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size when positive.
	MaxConns int32
}

// Connection is an open database handle. Exactly one of Pool and DB is set,
// according to Driver.
type Connection struct {
	Driver Driver
	Pool   *pgxpool.Pool
	DB     *sql.DB
}

// Open connects to the backend described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	driver := DetectDriver(cfg.URL)
	switch driver {
	case DriverPostgres:
		pool, err := OpenPostgres(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return &Connection{Driver: driver, Pool: pool}, nil
	case DriverSQLite:
		path := cfg.SQLitePath
		if cfg.URL != "" {
			path = SQLitePathFromURL(cfg.URL)
		}
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Connection{Driver: driver, DB: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Ping verifies the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	if c.Pool != nil {
		return c.Pool.Ping(ctx)
	}
	return c.DB.PingContext(ctx)
}

// Close releases the underlying handle.
func (c *Connection) Close() error {
	if c.Pool != nil {
		c.Pool.Close()
		return nil
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// OpenPostgres creates and pings a pgx connection pool.
func OpenPostgres(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// OpenSQLite opens the SQLite database at path with WAL journaling, foreign
// keys and a busy timeout. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}

// DefaultSQLitePath returns ~/.subtrack/data.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".subtrack", "data.db")
}
