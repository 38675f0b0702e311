// Package querysql compiles table statements to parameterized SQL.
//
// Every statement uses ? placeholders; values are never interpolated.
// Postgres statements are rebound to $n placeholders by Rebind. Every
// SELECT carries an ORDER BY on the identity column so results are
// deterministic.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// Dialect selects SQL flavor differences between engines.
type Dialect uint8

const (
	SQLite Dialect = iota
	Postgres
)

// ParseDialect maps a database/sql driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pq":
		return Postgres, nil
	default:
		return SQLite, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// Table describes the relational image of one entity table.
type Table struct {
	Name         string
	Identity     string
	IdentityKind value.Kind
	Fields       []schema.Field
}

// Columns returns the identity column followed by field columns, in
// declaration order.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+1)
	cols = append(cols, t.Identity)
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// Compiler renders statements for one dialect.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a Compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

func (c *Compiler) columnType(k value.Kind) string {
	switch c.dialect {
	case Postgres:
		switch k {
		case value.KindText:
			return `TEXT COLLATE "C"`
		case value.KindInt:
			return "BIGINT"
		case value.KindFloat:
			return "DOUBLE PRECISION"
		case value.KindBool:
			return "BOOLEAN"
		case value.KindBytes:
			return "BYTEA"
		}
	default:
		switch k {
		case value.KindText:
			return "TEXT"
		case value.KindInt:
			return "INTEGER"
		case value.KindFloat:
			return "REAL"
		case value.KindBool:
			return "BOOLEAN"
		case value.KindBytes:
			return "BLOB"
		}
	}
	return "TEXT"
}

// CreateTable renders an idempotent CREATE TABLE statement.
func (c *Compiler) CreateTable(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	fmt.Fprintf(&b, "  %s %s PRIMARY KEY", t.Identity, c.columnType(t.IdentityKind))
	for _, f := range t.Fields {
		fmt.Fprintf(&b, ",\n  %s %s", f.Name, c.columnType(f.Kind))
	}
	b.WriteString("\n)")
	return b.String()
}

func (c *Compiler) orderBy(t Table) string {
	if t.IdentityKind != value.KindText {
		return " ORDER BY " + t.Identity + " ASC"
	}
	if c.dialect == Postgres {
		return " ORDER BY " + t.Identity + ` COLLATE "C" ASC`
	}
	return " ORDER BY " + t.Identity + " COLLATE BINARY ASC"
}

func whereSQL(clause where.Clause) (string, []any) {
	if clause == nil {
		return "", nil
	}
	frag, params := clause.SQL()
	return " WHERE " + frag, params
}

// Select renders a scan of t filtered by clause. A nil clause selects
// every row.
func (c *Compiler) Select(t Table, clause where.Clause) (string, []any) {
	w, params := whereSQL(clause)
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s",
		strings.Join(t.Columns(), ", "), t.Name, w, c.orderBy(t))
	return sql, params
}

// SelectByID renders a point lookup. Its one parameter is the identity.
func (c *Compiler) SelectByID(t Table) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(t.Columns(), ", "), t.Name, t.Identity)
}

// Exists renders an identity membership test.
func (c *Compiler) Exists(t Table) string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", t.Name, t.Identity)
}

// Count renders a row count filtered by clause.
func (c *Compiler) Count(t Table, clause where.Clause) (string, []any) {
	w, params := whereSQL(clause)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.Name, w), params
}

// DeleteByID renders a point delete. Its one parameter is the identity.
func (c *Compiler) DeleteByID(t Table) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.Name, t.Identity)
}

// DeleteWhere renders a bulk delete returning the removed identities.
func (c *Compiler) DeleteWhere(t Table, clause where.Clause) (string, []any) {
	w, params := whereSQL(clause)
	return fmt.Sprintf("DELETE FROM %s%s RETURNING %s", t.Name, w, t.Identity), params
}

// Upsert renders an insert-or-replace of one row. Parameters follow
// Columns order: identity first.
func (c *Compiler) Upsert(t Table) string {
	cols := t.Columns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) ",
		t.Name, strings.Join(cols, ", "), marks, t.Identity)
	if len(t.Fields) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = excluded.%s", f.Name, f.Name)
	}
	return b.String()
}

// Rebind rewrites ? placeholders for the dialect. Placeholders inside
// single-quoted literals are left alone.
func (c *Compiler) Rebind(sql string) string {
	if c.dialect != Postgres || !strings.Contains(sql, "?") {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'':
			quoted = !quoted
		case ch == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
