package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/querysql"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// EntityMap is an entitymap.Map over one SQL table.
type EntityMap struct {
	store *Store
	info  entitymap.TableInfo
	table querysql.Table
}

var _ entitymap.Map = (*EntityMap)(nil)

// EnsureTable creates the SQL table for info if it is missing and returns
// its entity map. Existing tables are used as they are.
func (s *Store) EnsureTable(ctx context.Context, info entitymap.TableInfo) (*EntityMap, error) {
	m := &EntityMap{
		store: s,
		info:  info,
		table: querysql.Table{
			Name:         info.Name,
			Identity:     info.Identity,
			IdentityKind: info.IdentityKind,
			Fields:       info.Schema.Fields(),
		},
	}
	if !s.readOnly {
		if _, err := s.exec(ctx, s.compiler.CreateTable(m.table)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", info.Name, err)
		}
	}
	return m, nil
}

// Factory returns an entitymap.Factory creating tables in s.
func (s *Store) Factory() entitymap.Factory {
	return func(ctx context.Context, info entitymap.TableInfo) (entitymap.Map, error) {
		return s.EnsureTable(ctx, info)
	}
}

func idParam(id identity.ID) any {
	return value.ToParam(id.Value())
}

func (m *EntityMap) Put(ctx context.Context, e *entity.Entity) error {
	args := make([]any, 0, len(m.table.Fields)+1)
	args = append(args, idParam(e.ID()))
	for _, f := range m.table.Fields {
		args = append(args, value.ToParam(e.Get(f.Name)))
	}
	if _, err := m.store.exec(ctx, m.store.compiler.Upsert(m.table), args...); err != nil {
		return fmt.Errorf("put %s/%s: %w", m.info.Name, e.ID(), err)
	}
	return nil
}

func (m *EntityMap) Get(ctx context.Context, id identity.ID) (*entity.Entity, error) {
	rows, err := m.store.query(ctx, m.store.compiler.SelectByID(m.table), idParam(id))
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", m.info.Name, id, err)
	}
	found, err := m.scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", m.info.Name, id, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (m *EntityMap) Remove(ctx context.Context, id identity.ID) (bool, error) {
	res, err := m.store.exec(ctx, m.store.compiler.DeleteByID(m.table), idParam(id))
	if err != nil {
		return false, fmt.Errorf("remove %s/%s: %w", m.info.Name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove %s/%s: %w", m.info.Name, id, err)
	}
	return n > 0, nil
}

func (m *EntityMap) Contains(ctx context.Context, id identity.ID) (bool, error) {
	var one int
	err := m.store.queryRow(ctx, m.store.compiler.Exists(m.table), idParam(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("contains %s/%s: %w", m.info.Name, id, err)
	}
	return true, nil
}

func (m *EntityMap) Select(ctx context.Context, clause where.Clause, order where.Comparator) ([]*entity.Entity, error) {
	q, params := m.store.compiler.Select(m.table, clause)
	rows, err := m.store.query(ctx, q, params...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", m.info.Name, err)
	}
	found, err := m.scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", m.info.Name, err)
	}
	if order != nil {
		slices.SortStableFunc(found, order)
	}
	return found, nil
}

func (m *EntityMap) Count(ctx context.Context, clause where.Clause) (int, error) {
	q, params := m.store.compiler.Count(m.table, clause)
	var n int
	if err := m.store.queryRow(ctx, q, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", m.info.Name, err)
	}
	return n, nil
}

// RemoveWhere deletes with a single statement, so the matched set is
// fixed when the statement starts.
func (m *EntityMap) RemoveWhere(ctx context.Context, clause where.Clause) ([]identity.ID, error) {
	q, params := m.store.compiler.DeleteWhere(m.table, clause)
	rows, err := m.store.query(ctx, q, params...)
	if err != nil {
		return nil, fmt.Errorf("remove from %s: %w", m.info.Name, err)
	}
	defer rows.Close()

	ids := make([]identity.ID, 0)
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("remove from %s: scan: %w", m.info.Name, err)
		}
		id, err := m.scanID(raw)
		if err != nil {
			return nil, fmt.Errorf("remove from %s: %w", m.info.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("remove from %s: %w", m.info.Name, err)
	}
	slices.SortFunc(ids, identity.Compare)
	return ids, nil
}

func (m *EntityMap) ToArray(ctx context.Context) ([]*entity.Entity, error) {
	return m.Select(ctx, nil, nil)
}

func (m *EntityMap) Len(ctx context.Context) (int, error) {
	return m.Count(ctx, nil)
}

// scanAll hydrates every row and closes rows. Returns an empty slice, not
// nil, when there are no rows.
func (m *EntityMap) scanAll(rows *sql.Rows) ([]*entity.Entity, error) {
	defer rows.Close()

	width := len(m.table.Fields) + 1
	raw := make([]any, width)
	dest := make([]any, width)
	for i := range raw {
		dest[i] = &raw[i]
	}

	out := make([]*entity.Entity, 0)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e, err := m.hydrate(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (m *EntityMap) scanID(raw any) (identity.ID, error) {
	v, err := column(m.table.IdentityKind, raw)
	if err != nil {
		return identity.None, fmt.Errorf("identity: %w", err)
	}
	return identity.FromValue(v)
}

func (m *EntityMap) hydrate(raw []any) (*entity.Entity, error) {
	id, err := m.scanID(raw[0])
	if err != nil {
		return nil, err
	}
	values := make(value.Object, len(m.table.Fields))
	for i, f := range m.table.Fields {
		v, err := column(f.Kind, raw[i+1])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		if !value.IsNull(v) {
			values[f.Name] = v
		}
	}
	return entity.Load(m.info.Schema, m.info.Name, id, values)
}

// column converts a scanned driver value to the declared kind. Drivers
// may report text as []byte and SQLite reports booleans stored without a
// declared type as integers.
func column(k value.Kind, raw any) (value.Value, error) {
	switch r := raw.(type) {
	case []byte:
		if k == value.KindText {
			return value.Text(r), nil
		}
	case int64:
		if k == value.KindBool {
			return value.Bool(r != 0), nil
		}
	}
	v, err := value.FromAny(raw)
	if err != nil {
		return nil, err
	}
	return value.Coerce(k, v)
}
