package entitydb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/metrics"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/streamstore"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

const (
	// DefaultIdentityField names the identity column when a TableSpec
	// leaves it empty.
	DefaultIdentityField = "id"

	// DefaultCacheSize bounds the read cache of a table created with
	// Cache set and no CacheSize.
	DefaultCacheSize = 256
)

// TableSpec describes a table to create.
type TableSpec struct {
	// Name is the table name. It must be a valid identifier.
	Name string

	// Schema describes the entity type stored in the table.
	Schema *schema.Schema

	// Identity names the identity field. Defaults to "id".
	Identity string

	// IdentityKind is value.KindInt (the default) or value.KindText.
	IdentityKind value.Kind

	// Generator produces identities for entities inserted without one.
	// Defaults to an identity.Sequence for integer identities and to
	// identity.UUIDv7 for text identities.
	Generator identity.Generator

	// Maps creates the table backend. Defaults to the database's factory.
	Maps entitymap.Factory

	// Cache enables the point-lookup read cache.
	Cache bool

	// CacheSize bounds the read cache. Defaults to DefaultCacheSize.
	CacheSize int
}

func (s *TableSpec) normalize() error {
	if !schema.ValidName(s.Name) {
		return dberr.New(dberr.CodeSchema, "invalid table name %q", s.Name)
	}
	if s.Schema == nil {
		return dberr.New(dberr.CodeSchema, "table %q has no schema", s.Name).InTable(s.Name)
	}
	if s.Identity == "" {
		s.Identity = DefaultIdentityField
	}
	if !schema.ValidName(s.Identity) {
		return dberr.New(dberr.CodeSchema, "invalid identity field %q", s.Identity).InTable(s.Name)
	}
	if _, ok := s.Schema.Field(s.Identity); ok || s.Schema.HasStream(s.Identity) {
		return dberr.New(dberr.CodeSchema, "identity field %q collides with a %s field", s.Identity, s.Schema.Type()).
			InTable(s.Name).OnField(s.Identity)
	}
	switch s.IdentityKind {
	case value.KindNull:
		s.IdentityKind = value.KindInt
	case value.KindInt, value.KindText:
	default:
		return dberr.New(dberr.CodeSchema, "unsupported identity kind %s", s.IdentityKind).InTable(s.Name).OnField(s.Identity)
	}
	if s.Generator == nil {
		if s.IdentityKind == value.KindText {
			s.Generator = identity.UUIDv7{}
		} else {
			s.Generator = identity.NewSequence()
		}
	}
	if s.Cache && s.CacheSize <= 0 {
		s.CacheSize = DefaultCacheSize
	}
	return nil
}

// Table binds one entity type to one backend.
//
// Thread-safety: Table is safe for concurrent use. Mutations serialize on
// the table lock; reads go straight to the backend.
type Table struct {
	db      *Database
	name    string
	schema  *schema.Schema
	info    entitymap.TableInfo
	m       entitymap.Map
	gen     identity.Generator
	columns []string
	cache   *lru.Cache

	lock tableLock

	hookMu    sync.Mutex
	triggers  triggerSet
	observers observerSet
}

func newTable(ctx context.Context, db *Database, spec TableSpec) (*Table, error) {
	t := &Table{
		db:     db,
		name:   spec.Name,
		schema: spec.Schema,
		info: entitymap.TableInfo{
			Name:         spec.Name,
			Schema:       spec.Schema,
			Identity:     spec.Identity,
			IdentityKind: spec.IdentityKind,
		},
		gen: spec.Generator,
	}
	t.lock.holder = lockKey{t}

	t.columns = append(t.columns, spec.Identity)
	for _, f := range spec.Schema.Fields() {
		t.columns = append(t.columns, f.Name)
	}

	factory := spec.Maps
	if factory == nil {
		factory = db.maps
	}
	m, err := factory(ctx, t.info)
	if err != nil {
		return nil, fmt.Errorf("create backend for table %s: %w", spec.Name, err)
	}
	t.m = m

	if spec.Cache {
		c, err := lru.New(spec.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache for table %s: %w", spec.Name, err)
		}
		t.cache = c
	}

	if obs, ok := t.gen.(identity.Observer); ok {
		existing, err := m.ToArray(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed identities of table %s: %w", spec.Name, err)
		}
		for _, e := range existing {
			obs.Observe(e.ID())
		}
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the schema of the stored entity type.
func (t *Table) Schema() *schema.Schema { return t.schema }

// IdentityField returns the name of the identity field.
func (t *Table) IdentityField() string { return t.info.Identity }

// IdentityKind returns the kind of the identities of the table.
func (t *Table) IdentityKind() value.Kind { return t.info.IdentityKind }

// Info returns what the backend knows about the table.
func (t *Table) Info() entitymap.TableInfo { return t.info }

// Columns returns the identity field followed by the scalar fields in
// declaration order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Binder returns the binder clauses are resolved against.
func (t *Table) Binder() where.Binder { return t.info.Binder() }

// bind binds c to the table. A clause already bound to the table is
// accepted as is; one bound to another table is a schema error.
func (t *Table) bind(c where.Clause) error {
	if c.Bound() {
		if c.Binder() != t.Binder() {
			return dberr.New(dberr.CodeSchema, "clause is bound to another table").InTable(t.name)
		}
		return nil
	}
	err := c.Bind(t.Binder())
	var de *dberr.Error
	if errors.As(err, &de) && de.Table == "" {
		return de.InTable(t.name)
	}
	return err
}

// NewEntity creates a detached entity of the table's type.
func (t *Table) NewEntity() *entity.Entity {
	return entity.New(t.schema)
}

// ParseID parses the text form of an identity of this table.
func (t *Table) ParseID(s string) (identity.ID, error) {
	id, err := identity.Parse(t.info.IdentityKind, s)
	if err != nil {
		return identity.None, dberr.Wrap(dberr.CodeSchema, err, "parse identity").InTable(t.name).OnField(t.info.Identity)
	}
	return id, nil
}

func (t *Table) checkEntity(e *entity.Entity) error {
	if e == nil {
		return dberr.New(dberr.CodeSchema, "nil entity").InTable(t.name)
	}
	if e.Type() != t.schema.Type() {
		return dberr.New(dberr.CodeTypeMismatch, "%s entity handed to table of %s", e.Type(), t.schema.Type()).InTable(t.name)
	}
	if e.Table() != "" && e.Table() != t.name {
		return dberr.New(dberr.CodeTypeMismatch, "entity belongs to table %s", e.Table()).InTable(t.name)
	}
	return nil
}

func (t *Table) checkID(id identity.ID) error {
	if id.Kind() != t.info.IdentityKind {
		return dberr.New(dberr.CodeSchema, "identity %s is not of kind %s", id, t.info.IdentityKind).
			InTable(t.name).OnField(t.info.Identity)
	}
	return nil
}

// attach makes e a live entity of this table.
func (t *Table) attach(e *entity.Entity) *entity.Entity {
	e.Bind(t.name, t.db.streams)
	return e
}

// persist saves the entity's pending streams and writes it under id. The
// work happens on a copy; e only takes the persisted state on success.
// On failure the stream store is put back as it was: payloads of a fresh
// entity are removed, and the payloads an update overwrote are restored.
func (t *Table) persist(ctx context.Context, e *entity.Entity, id identity.ID, fresh bool) (*entity.Entity, error) {
	c := e.Clone()
	if err := c.SetID(id); err != nil {
		return nil, dberr.Wrap(dberr.CodeSchema, err, "assign identity %s", id).InTable(t.name)
	}
	t.attach(c)

	var previous map[string][]byte
	if !fresh {
		var err error
		if previous, err = t.snapshotStreams(ctx, c); err != nil {
			return nil, err
		}
	}
	fail := func(err error) (*entity.Entity, error) {
		if fresh {
			t.dropStreams(ctx, id)
		} else {
			t.restoreStreams(ctx, c, previous)
		}
		return nil, err
	}
	if _, err := c.SaveStreams(ctx); err != nil {
		return fail(err)
	}
	if err := t.m.Put(ctx, c); err != nil {
		return fail(fmt.Errorf("write %s %s: %w", t.name, id, err))
	}
	*e = *c.Clone()
	return c, nil
}

// snapshotStreams reads the stored payloads the pending streams of c
// would overwrite. A nil payload marks a field with nothing stored.
func (t *Table) snapshotStreams(ctx context.Context, c *entity.Entity) (map[string][]byte, error) {
	var snap map[string][]byte
	for _, name := range t.schema.Streams() {
		if !c.StreamPending(name) {
			continue
		}
		if snap == nil {
			snap = make(map[string][]byte)
		}
		rc, err := t.db.streams.Open(ctx, c.StreamLocation(name))
		if errors.Is(err, streamstore.ErrNotExist) {
			snap[name] = nil
			continue
		} else if err != nil {
			return nil, dberr.Wrap(dberr.CodeStreamIO, err, "read stream").InTable(t.name).OnField(name)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, dberr.Wrap(dberr.CodeStreamIO, err, "read stream").InTable(t.name).OnField(name)
		}
		snap[name] = data
	}
	return snap, nil
}

func (t *Table) restoreStreams(ctx context.Context, c *entity.Entity, snap map[string][]byte) {
	for name, data := range snap {
		loc := c.StreamLocation(name)
		var err error
		if data == nil {
			err = t.db.streams.Remove(ctx, loc)
		} else {
			_, err = t.db.streams.Put(ctx, loc, bytes.NewReader(data))
		}
		if err != nil {
			slog.Warn("restore stream payload", "table", t.name, "id", loc.ID, "field", name, "error", err)
		}
	}
}

func (t *Table) dropStreams(ctx context.Context, id identity.ID) {
	if len(t.schema.Streams()) == 0 {
		return
	}
	if err := t.db.streams.RemoveEntity(ctx, t.name, id.String()); err != nil {
		slog.Warn("remove stream payloads", "table", t.name, "id", id.String(), "error", err)
	}
}

// Insert stores a new entity. An entity without identity gets one from
// the generator; a pre-assigned identity that is already stored fails
// with a duplicate-key error. On success e is live.
func (t *Table) Insert(ctx context.Context, e *entity.Entity) error {
	if err := t.checkEntity(e); err != nil {
		return err
	}
	ctx = t.Lock(ctx)
	defer t.Unlock(ctx)

	if err := t.beforeEntity(ctx, metrics.OpInsert, &t.triggers.insert, e); err != nil {
		return err
	}

	id := e.ID()
	if id.IsZero() {
		id = t.gen.Next()
	}
	if err := t.checkID(id); err != nil {
		return err
	}
	exists, err := t.m.Contains(ctx, id)
	if err != nil {
		return fmt.Errorf("check %s %s: %w", t.name, id, err)
	}
	if exists {
		return dberr.New(dberr.CodeDuplicateKey, "identity %s already present", id).InTable(t.name)
	}

	stored, err := t.persist(ctx, e, id, true)
	if err != nil {
		return err
	}
	if obs, ok := t.gen.(identity.Observer); ok {
		obs.Observe(id)
	}
	t.invalidate(id)

	t.afterEntity(ctx, &t.triggers.insert, e)
	t.notifyEntity(ctx, Inserted, id, nil, stored)
	t.notifySet(ctx)
	t.notifyCursors(ctx)

	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpInsert).Inc()
	slog.Debug("entity inserted", "table", t.name, "id", id.String())
	return nil
}

// Update rewrites a stored entity. Updating an identity that is not
// stored fails with a not-found error.
func (t *Table) Update(ctx context.Context, e *entity.Entity) error {
	if err := t.checkEntity(e); err != nil {
		return err
	}
	id := e.ID()
	if id.IsZero() {
		return dberr.New(dberr.CodeNotFound, "update of %s entity without identity", e.Type()).InTable(t.name)
	}
	if err := t.checkID(id); err != nil {
		return err
	}
	ctx = t.Lock(ctx)
	defer t.Unlock(ctx)

	before, err := t.m.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", t.name, id, err)
	}
	if before == nil {
		return dberr.New(dberr.CodeNotFound, "identity %s not present", id).InTable(t.name)
	}

	if err := t.beforeEntity(ctx, metrics.OpUpdate, &t.triggers.update, e); err != nil {
		return err
	}
	stored, err := t.persist(ctx, e, id, false)
	if err != nil {
		return err
	}
	t.invalidate(id)

	t.afterEntity(ctx, &t.triggers.update, e)
	t.notifyEntity(ctx, Updated, id, before, stored)
	t.notifyCursors(ctx)

	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpUpdate).Inc()
	slog.Debug("entity updated", "table", t.name, "id", id.String())
	return nil
}

// Delete removes the entity stored under id together with its stream
// payloads. It returns false, and changes nothing, when id is not stored.
func (t *Table) Delete(ctx context.Context, id identity.ID) (bool, error) {
	if id.IsZero() {
		return false, nil
	}
	ctx = t.Lock(ctx)
	defer t.Unlock(ctx)

	before, err := t.m.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("read %s %s: %w", t.name, id, err)
	}
	if before == nil {
		return false, nil
	}
	t.attach(before)

	if err := t.beforeDelete(ctx, id, before); err != nil {
		return false, err
	}
	removed, err := t.m.Remove(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", t.name, id, err)
	}
	if !removed {
		return false, nil
	}
	t.dropStreams(ctx, id)
	t.invalidate(id)

	t.afterDelete(ctx, id, before)
	t.notifyEntity(ctx, Deleted, id, before, nil)
	t.notifySet(ctx)
	t.notifyCursors(ctx)

	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpDelete).Inc()
	slog.Debug("entity deleted", "table", t.name, "id", id.String())
	return true, nil
}

// Get returns the entity stored under id, or nil when absent.
func (t *Table) Get(ctx context.Context, id identity.ID) (*entity.Entity, error) {
	if id.IsZero() {
		return nil, nil
	}
	if t.cache != nil {
		if cached, ok := t.cache.Get(id); ok {
			metrics.CacheLookupsTotal.WithLabelValues(t.name, metrics.Hit).Inc()
			return cached.(*entity.Entity).Clone(), nil
		}
		metrics.CacheLookupsTotal.WithLabelValues(t.name, metrics.Miss).Inc()
	}

	e, err := t.m.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", t.name, id, err)
	}
	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpGet).Inc()
	if e == nil {
		return nil, nil
	}
	t.attach(e)
	if t.cache != nil {
		t.cache.Add(id, e.Clone())
	}
	return e, nil
}

// Contains reports whether an entity is stored under id.
func (t *Table) Contains(ctx context.Context, id identity.ID) (bool, error) {
	if id.IsZero() {
		return false, nil
	}
	ok, err := t.m.Contains(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", t.name, id, err)
	}
	return ok, nil
}

// Count returns the number of stored entities.
func (t *Table) Count(ctx context.Context) (int, error) {
	n, err := t.m.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

func (t *Table) checkQuery(q *Query) error {
	if q == nil || q.table != t {
		return dberr.New(dberr.CodeSchema, "query does not belong to table").InTable(t.name)
	}
	return nil
}

// QueryCount returns how many entities match q.
func (t *Table) QueryCount(ctx context.Context, q *Query) (int, error) {
	if err := t.checkQuery(q); err != nil {
		return 0, err
	}
	n, err := t.m.Count(ctx, q.clause)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

func (t *Table) selectRows(ctx context.Context, q *Query) ([]*entity.Entity, error) {
	rows, err := t.m.Select(ctx, q.clause, q.order)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	for _, e := range rows {
		t.attach(e)
	}
	return rows, nil
}

// Query runs q and returns a cursor over the matching entities. The
// cursor must be closed.
func (t *Table) Query(ctx context.Context, q *Query) (*Cursor, error) {
	if err := t.checkQuery(q); err != nil {
		return nil, err
	}
	if err := t.beforeQuery(ctx, q); err != nil {
		return nil, err
	}
	rows, err := t.selectRows(ctx, q)
	if err != nil {
		return nil, err
	}
	c := newCursor(q, rows)
	t.afterQuery(ctx, q, c)

	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpQuery).Inc()
	slog.Debug("query executed", "table", t.name, "rows", len(rows))
	return c, nil
}

// DeleteMany removes every entity matching q in one backend operation.
// Delete triggers and entity observers do not fire; set observers and
// cursors are notified once.
func (t *Table) DeleteMany(ctx context.Context, q *Query) (int, error) {
	if err := t.checkQuery(q); err != nil {
		return 0, err
	}
	ctx = t.Lock(ctx)
	defer t.Unlock(ctx)

	ids, err := t.m.RemoveWhere(ctx, q.clause)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}
	for _, id := range ids {
		t.dropStreams(ctx, id)
		t.invalidate(id)
	}
	if len(ids) > 0 {
		t.notifySet(ctx)
		t.notifyCursors(ctx)
	}

	metrics.TableOperationsTotal.WithLabelValues(t.name, metrics.OpDeleteMany).Inc()
	slog.Debug("entities deleted", "table", t.name, "count", len(ids))
	return len(ids), nil
}

// DeleteManyIndividually deletes the entities matching q one at a time,
// firing delete triggers and observers for each. A vetoed delete stops
// the pass and its error is returned with the count deleted so far.
func (t *Table) DeleteManyIndividually(ctx context.Context, q *Query) (int, error) {
	if err := t.checkQuery(q); err != nil {
		return 0, err
	}
	ctx = t.Lock(ctx)
	defer t.Unlock(ctx)

	victims, err := t.m.Select(ctx, q.clause, nil)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", t.name, err)
	}
	n := 0
	for _, e := range victims {
		ok, err := t.Delete(ctx, e.ID())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (t *Table) invalidate(id identity.ID) {
	if t.cache != nil {
		t.cache.Remove(id)
	}
}

func (t *Table) purgeCache() {
	if t.cache != nil {
		t.cache.Purge()
	}
}
