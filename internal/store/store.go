package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/filtersql"
	"github.com/roach88/haybind/internal/watch"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on point_writes.expires_at
const currentSchemaVersion = 1

// ErrNotFound is returned when a required record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a SQLite-backed Haystack database.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db       *sql.DB
	compiler *filtersql.Compiler
	subs     *watch.Manager
	now      func() time.Time
	logger   *slog.Logger
}

var _ client.Client = (*Store)(nil)

// Option configures a Store.
type Option func(*config)

type config struct {
	now       func() time.Time
	logger    *slog.Logger
	watchOpts []watch.Option
}

// WithNow sets the wall clock used for write expiry and mod times.
func WithNow(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the store's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithWatchOptions configures the handles returned by Subscriptions.
func WithWatchOptions(opts ...watch.Option) Option {
	return func(c *config) { c.watchOpts = append(c.watchOpts, opts...) }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:       db,
		compiler: filtersql.NewCompiler(),
		now:      cfg.now,
		logger:   cfg.logger.With("component", "store"),
	}
	watchOpts := append([]watch.Option{watch.WithLogger(cfg.logger)}, cfg.watchOpts...)
	s.subs = watch.NewManager(s, watchOpts...)
	return s, nil
}

// Close stops every open subscription and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.subs.CloseAll(context.Background()); err != nil {
		s.logger.Warn("closing subscriptions failed", "error", err)
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Subscriptions returns the store's polling subscription manager.
func (s *Store) Subscriptions() client.Subscriptions {
	return s.subs
}

// Watches returns the subscription manager with its bookkeeping.
func (s *Store) Watches() *watch.Manager {
	return s.subs
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes write expiry, scanned before every read.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_point_writes_expires
		ON point_writes(expires_at) WHERE expires_at IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
