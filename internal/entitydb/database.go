package entitydb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/streamstore"
)

// Options configures a Database.
type Options struct {
	// Manager handles transactions and metadata. Defaults to a NopManager.
	Manager Manager

	// Streams receives stream field payloads. Defaults to an in-memory
	// store.
	Streams streamstore.Store

	// Maps creates table backends when a TableSpec names none. Defaults to
	// entitymap.MemoryFactory.
	Maps entitymap.Factory
}

// Database is a registry of tables sharing one manager and stream store.
//
// Thread-safety: Database is safe for concurrent use. The registry lock is
// held only while reading or changing the registry.
type Database struct {
	mgr     Manager
	streams streamstore.Store
	maps    entitymap.Factory

	mu     sync.RWMutex
	byName map[string]*Table
	byType map[string]*Table

	txMu    sync.Mutex
	levels  []bool
	aborted bool
}

// Open creates a Database over the configured collaborators.
func Open(opts Options) *Database {
	db := &Database{
		mgr:     opts.Manager,
		streams: opts.Streams,
		maps:    opts.Maps,
		byName:  make(map[string]*Table),
		byType:  make(map[string]*Table),
	}
	if db.mgr == nil {
		db.mgr = NewNopManager(false)
	}
	if db.streams == nil {
		db.streams = streamstore.NewMem()
	}
	if db.maps == nil {
		db.maps = entitymap.MemoryFactory
	}
	return db
}

// Streams returns the database's stream store.
func (db *Database) Streams() streamstore.Store {
	return db.streams
}

// Manager returns the database manager.
func (db *Database) Manager() Manager {
	return db.mgr
}

func (db *Database) checkFree(name, entityType string) error {
	if _, ok := db.byName[name]; ok {
		return dberr.New(dberr.CodeSchema, "table %q already registered", name).InTable(name)
	}
	if t, ok := db.byType[entityType]; ok {
		return dberr.New(dberr.CodeSchema, "entity type %q already bound to table %q", entityType, t.name).InTable(name)
	}
	return nil
}

// CreateTable registers a new table. It fails with a schema error when
// the name or the entity type is already registered.
func (db *Database) CreateTable(ctx context.Context, spec TableSpec) (*Table, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	err := db.checkFree(spec.Name, spec.Schema.Type())
	db.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	t, err := newTable(ctx, db, spec)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkFree(spec.Name, spec.Schema.Type()); err != nil {
		return nil, err
	}
	db.byName[t.name] = t
	db.byType[t.schema.Type()] = t
	slog.Debug("table created", "table", t.name, "entity", t.schema.Type(), "cache", t.cache != nil)
	return t, nil
}

// Table returns the table registered under name.
func (db *Database) Table(name string) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.byName[name]
	return t, ok
}

// TableFor returns the table storing entities of the given type.
func (db *Database) TableFor(entityType string) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.byType[entityType]
	return t, ok
}

// Tables returns every registered table ordered by name.
func (db *Database) Tables() []*Table {
	db.mu.RLock()
	out := make([]*Table, 0, len(db.byName))
	for _, t := range db.byName {
		out = append(out, t)
	}
	db.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Table) int { return strings.Compare(a.name, b.name) })
	return out
}

// BeginTransaction opens a transaction or a nested level of the open one.
func (db *Database) BeginTransaction(ctx context.Context) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	if err := db.mgr.BeginTransaction(ctx); err != nil {
		return err
	}
	if len(db.levels) == 0 {
		db.aborted = false
	}
	db.levels = append(db.levels, false)
	return nil
}

// SetTransactionSuccessful marks the innermost level successful.
func (db *Database) SetTransactionSuccessful() error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	if len(db.levels) == 0 {
		return ErrNoTransaction
	}
	if err := db.mgr.SetTransactionSuccessful(); err != nil {
		return err
	}
	db.levels[len(db.levels)-1] = true
	return nil
}

// EndTransaction closes the innermost level. The outermost level commits
// only if every level was marked successful. When it does not, table
// caches are purged since they may hold rolled-back state.
func (db *Database) EndTransaction(ctx context.Context) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	n := len(db.levels)
	if n == 0 {
		return ErrNoTransaction
	}
	if !db.levels[n-1] {
		db.aborted = true
	}
	db.levels = db.levels[:n-1]
	err := db.mgr.EndTransaction(ctx)
	if n == 1 && (db.aborted || err != nil) {
		for _, t := range db.Tables() {
			t.purgeCache()
		}
	}
	return err
}

// InTransaction reports whether a transaction is open.
func (db *Database) InTransaction() bool {
	return db.mgr.InTransaction()
}

// RunInTransaction runs fn inside a transaction level that is marked
// successful when fn returns nil.
func (db *Database) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := db.BeginTransaction(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if endErr := db.EndTransaction(ctx); endErr != nil && err == nil {
			err = fmt.Errorf("end transaction: %w", endErr)
		}
	}()
	if err := fn(ctx); err != nil {
		return err
	}
	return db.SetTransactionSuccessful()
}

// Version returns the schema version recorded by the manager.
func (db *Database) Version(ctx context.Context) (int, error) {
	return db.mgr.Version(ctx)
}

// SetVersion records the schema version through the manager.
func (db *Database) SetVersion(ctx context.Context, version int) error {
	return db.mgr.SetVersion(ctx, version)
}

// ReadOnly reports whether the manager refuses writes.
func (db *Database) ReadOnly() bool {
	return db.mgr.ReadOnly()
}

// Close closes every open cursor and the manager.
func (db *Database) Close() error {
	for _, t := range db.Tables() {
		t.closeCursors()
	}
	return db.mgr.Close()
}
