package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/entitydb/internal/querysql"
)

// ErrNoTransaction is returned when ending or marking a transaction that
// was never begun.
var ErrNoTransaction = errors.New("no transaction in progress")

const metaTable = "entitydb_meta"

// Store is a relational database manager.
//
// Thread-safety: Store is safe for concurrent use.
type Store struct {
	db       *sql.DB
	driver   string
	compiler *querysql.Compiler
	readOnly bool

	mu      sync.Mutex
	tx      *sql.Tx
	levels  []bool // success mark per open level, outermost first
	aborted bool   // an inner level ended unmarked
}

// Option configures Open.
type Option func(*options)

type options struct {
	readOnly bool
}

// ReadOnly opens the store refusing writes.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// Open connects to a database. driver is "sqlite3" or "postgres"; dsn is
// passed to the driver unchanged. Required configuration is applied
// automatically and Open is safe to call repeatedly on the same database.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialect, err := querysql.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.String(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.SQLite {
		db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
		db.SetMaxIdleConns(1) // Keep one connection ready
	}

	s := &Store{
		db:       db,
		driver:   dialect.String(),
		compiler: querysql.NewCompiler(dialect),
		readOnly: o.readOnly,
	}
	if err := s.configure(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	slog.Debug("store opened", "driver", s.driver, "read_only", s.readOnly)
	return s, nil
}

// OpenSQLite opens or creates a SQLite database file.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	return Open(ctx, "sqlite3", path, opts...)
}

func (s *Store) configure(ctx context.Context) error {
	var stmts []string
	switch s.compiler.Dialect() {
	case querysql.Postgres:
		stmts = []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BIGINT NOT NULL)", metaTable),
		}
		if s.readOnly {
			stmts = append(stmts, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY")
		}
	default:
		stmts = []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA case_sensitive_like = ON",
		}
		if s.readOnly {
			stmts = append(stmts, "PRAGMA query_only = ON")
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database connection. An open transaction is rolled
// back.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.levels = nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - statements on it bypass any open transaction.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// ReadOnly reports whether the store refuses writes.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the open transaction, or the database when none is open.
func (s *Store) conn() conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn().ExecContext(ctx, s.compiler.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn().QueryContext(ctx, s.compiler.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn().QueryRowContext(ctx, s.compiler.Rebind(query), args...)
}

// BeginTransaction opens a transaction, or a nested level of the one
// already open.
func (s *Store) BeginTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.levels) == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
		s.aborted = false
	}
	s.levels = append(s.levels, false)
	return nil
}

// SetTransactionSuccessful marks the innermost level successful.
func (s *Store) SetTransactionSuccessful() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return ErrNoTransaction
	}
	s.levels[len(s.levels)-1] = true
	return nil
}

// EndTransaction closes the innermost level. Closing the outermost level
// commits when every level was marked successful and rolls back
// otherwise.
func (s *Store) EndTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.levels)
	if n == 0 {
		return ErrNoTransaction
	}
	if !s.levels[n-1] {
		s.aborted = true
	}
	s.levels = s.levels[:n-1]
	if n > 1 {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if s.aborted {
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("rollback transaction: %w", err)
		}
		slog.Debug("transaction rolled back", "driver", s.driver)
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.levels) > 0
}

// Version returns the schema version recorded in the database. It is 0
// for a new database.
func (s *Store) Version(ctx context.Context) (int, error) {
	var version int
	var err error
	if s.compiler.Dialect() == querysql.Postgres {
		err = s.queryRow(ctx,
			fmt.Sprintf("SELECT value FROM %s WHERE key = 'version'", metaTable)).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
	} else {
		err = s.queryRow(ctx, "PRAGMA user_version").Scan(&version)
	}
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// SetVersion records the schema version.
func (s *Store) SetVersion(ctx context.Context, version int) error {
	var err error
	if s.compiler.Dialect() == querysql.Postgres {
		_, err = s.exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (key, value) VALUES ('version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			metaTable), int64(version))
	} else {
		_, err = s.exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	}
	if err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	return nil
}
