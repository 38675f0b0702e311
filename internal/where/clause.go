package where

import (
	"errors"
	"strings"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
)

// ErrAlreadyBound is returned when binding a clause a second time.
var ErrAlreadyBound = errors.New("where: clause already bound")

// Clause is a node of a predicate tree.
//
// This is a sealed interface: only Leaf and Composite implement it.
type Clause interface {
	// Bind resolves field references against b. It may be called once.
	Bind(b Binder) error

	// Bound reports whether Bind succeeded.
	Bound() bool

	// Binder returns the binder of a successful Bind, or nil.
	Binder() Binder

	// Match evaluates the clause against one entity.
	Match(e *entity.Entity) bool

	// SQL renders a parenthesized boolean fragment and its parameters.
	SQL() (string, []any)

	unbind()
	clauseNode() // Marker method - seals interface to this package
}

// Binder resolves field names for one table. Implementations must be
// comparable; equal binders resolve against the same table.
type Binder interface {
	// ResolveField returns the declared field for name. The identity field
	// resolves like any other field.
	ResolveField(name string) (schema.Field, bool)

	// IdentityField returns the name of the table's identity field.
	IdentityField() string
}

// SchemaBinder binds clauses against a schema plus an identity field.
// Table names the table the binder serves and only tells binders apart.
type SchemaBinder struct {
	Table        string
	Schema       *schema.Schema
	Identity     string
	IdentityKind value.Kind
}

func (b SchemaBinder) ResolveField(name string) (schema.Field, bool) {
	if name == b.Identity {
		return schema.Field{Name: name, Kind: b.IdentityKind}, true
	}
	return b.Schema.Field(name)
}

func (b SchemaBinder) IdentityField() string {
	return b.Identity
}

// Op is a leaf comparison operator.
type Op uint8

const (
	OpEquals Op = iota
	OpNotEquals
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpLike
	OpLeftLike
	OpIsEmpty
)

var opNames = [...]string{
	OpEquals:         "equals",
	OpNotEquals:      "not-equals",
	OpGreater:        "greater",
	OpGreaterOrEqual: "greater-or-equal",
	OpLess:           "less",
	OpLessOrEqual:    "less-or-equal",
	OpLike:           "like",
	OpLeftLike:       "left-like",
	OpIsEmpty:        "is-empty",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(?)"
}

var sqlOps = [...]string{
	OpEquals:         "=",
	OpNotEquals:      "<>",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
}

// Leaf compares one field against an operand.
type Leaf struct {
	op      Op
	field   string
	operand value.Value
	convErr error

	binder   Binder
	kind     value.Kind
	identity bool
}

func (*Leaf) clauseNode() {}

func newLeaf(op Op, field string, v any) *Leaf {
	l := &Leaf{op: op, field: field}
	l.operand, l.convErr = value.FromAny(v)
	if l.operand != nil {
		l.operand = value.Clone(l.operand)
	}
	return l
}

// Equals matches entities whose field equals v. A nil or Null v matches
// null fields.
func Equals(field string, v any) *Leaf { return newLeaf(OpEquals, field, v) }

// NotEquals matches entities whose field is non-null and differs from v.
// A nil or Null v matches non-null fields.
func NotEquals(field string, v any) *Leaf { return newLeaf(OpNotEquals, field, v) }

// Greater matches field > v.
func Greater(field string, v any) *Leaf { return newLeaf(OpGreater, field, v) }

// GreaterOrEqual matches field >= v.
func GreaterOrEqual(field string, v any) *Leaf { return newLeaf(OpGreaterOrEqual, field, v) }

// Less matches field < v.
func Less(field string, v any) *Leaf { return newLeaf(OpLess, field, v) }

// LessOrEqual matches field <= v.
func LessOrEqual(field string, v any) *Leaf { return newLeaf(OpLessOrEqual, field, v) }

// Like matches text fields containing s. The test is case preserving.
func Like(field, s string) *Leaf { return newLeaf(OpLike, field, s) }

// LeftLike matches text fields starting with s. The test is case
// preserving.
func LeftLike(field, s string) *Leaf { return newLeaf(OpLeftLike, field, s) }

// IsEmpty matches null fields and, for text fields, the empty string.
// It cannot target the identity field.
func IsEmpty(field string) *Leaf { return newLeaf(OpIsEmpty, field, nil) }

// Op returns the leaf operator.
func (l *Leaf) Op() Op { return l.op }

// Field returns the referenced field name.
func (l *Leaf) Field() string { return l.field }

// Operand returns the comparison operand, or Null for IsEmpty.
func (l *Leaf) Operand() value.Value { return value.Of(l.operand) }

func (l *Leaf) Bound() bool { return l.binder != nil }

func (l *Leaf) Binder() Binder { return l.binder }

func (l *Leaf) unbind() {
	l.binder = nil
	l.kind = value.KindNull
	l.identity = false
}

func (l *Leaf) Bind(b Binder) error {
	if l.binder != nil {
		return ErrAlreadyBound
	}
	schemaErr := func(format string, args ...any) error {
		return dberr.New(dberr.CodeSchema, format, args...).OnField(l.field)
	}
	if l.convErr != nil {
		return dberr.Wrap(dberr.CodeSchema, l.convErr, "%s operand", l.op).OnField(l.field)
	}
	f, ok := b.ResolveField(l.field)
	if !ok {
		return schemaErr("unknown field %q", l.field)
	}
	identity := l.field == b.IdentityField()
	operand := value.Of(l.operand)

	switch l.op {
	case OpIsEmpty:
		if identity {
			return schemaErr("is-empty cannot target identity field %q", l.field)
		}
	case OpLike, OpLeftLike:
		if f.Kind != value.KindText {
			return schemaErr("%s requires a text field, %q is %s", l.op, l.field, f.Kind)
		}
	case OpEquals, OpNotEquals:
		if !value.Compatible(f.Kind, operand.Kind()) {
			return schemaErr("cannot compare %s field %q with %s", f.Kind, l.field, operand.Kind())
		}
	default:
		if value.IsNull(operand) {
			return schemaErr("%s requires a non-null operand", l.op)
		}
		if !value.Compatible(f.Kind, operand.Kind()) {
			return schemaErr("cannot compare %s field %q with %s", f.Kind, l.field, operand.Kind())
		}
	}

	l.kind = f.Kind
	l.identity = identity
	l.binder = b
	return nil
}

func (l *Leaf) fieldValue(e *entity.Entity) value.Value {
	if l.identity {
		return e.ID().Value()
	}
	return e.Get(l.field)
}

func (l *Leaf) Match(e *entity.Entity) bool {
	fv := l.fieldValue(e)
	operand := value.Of(l.operand)

	switch l.op {
	case OpIsEmpty:
		if value.IsNull(fv) {
			return true
		}
		t, ok := fv.(value.Text)
		return ok && t == ""
	case OpLike, OpLeftLike:
		t, ok := fv.(value.Text)
		s, _ := operand.(value.Text)
		if !ok {
			return false
		}
		if l.op == OpLike {
			return strings.Contains(string(t), string(s))
		}
		return strings.HasPrefix(string(t), string(s))
	case OpEquals:
		if value.IsNull(operand) {
			return value.IsNull(fv)
		}
		c, ok := value.Compare(fv, operand)
		return ok && c == 0
	case OpNotEquals:
		if value.IsNull(operand) {
			return !value.IsNull(fv)
		}
		c, ok := value.Compare(fv, operand)
		return ok && c != 0
	}

	c, ok := value.Compare(fv, operand)
	if !ok {
		return false
	}
	switch l.op {
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	}
	return false
}

func (l *Leaf) SQL() (string, []any) {
	f := l.field
	operand := value.Of(l.operand)

	switch l.op {
	case OpIsEmpty:
		if l.binder != nil && l.kind != value.KindText {
			return "(" + f + " IS NULL)", nil
		}
		return "(" + f + " IS NULL OR " + f + " = '')", nil
	case OpLike:
		s, _ := operand.(value.Text)
		return "(" + f + ` LIKE ? ESCAPE '\')`, []any{"%" + escapeLike(string(s)) + "%"}
	case OpLeftLike:
		s, _ := operand.(value.Text)
		return "(" + f + ` LIKE ? ESCAPE '\')`, []any{escapeLike(string(s)) + "%"}
	case OpEquals:
		if value.IsNull(operand) {
			return "(" + f + " IS NULL)", nil
		}
	case OpNotEquals:
		if value.IsNull(operand) {
			return "(" + f + " IS NOT NULL)", nil
		}
	}
	return "(" + f + " " + sqlOps[l.op] + " ?)", []any{value.ToParam(operand)}
}

// escapeLike escapes LIKE wildcards so the operand matches literally.
func escapeLike(s string) string {
	if !strings.ContainsAny(s, `%_\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Composite combines child clauses with AND or OR.
type Composite struct {
	or       bool
	children []Clause
	binder   Binder
}

func (*Composite) clauseNode() {}

// And matches entities matching every child. With no children it matches
// everything.
func And(children ...Clause) *Composite {
	return &Composite{children: children}
}

// Or matches entities matching at least one child. With no children it
// matches nothing.
func Or(children ...Clause) *Composite {
	return &Composite{or: true, children: children}
}

// IsOr reports whether the composite is a disjunction.
func (c *Composite) IsOr() bool { return c.or }

// Children returns the child clauses in order.
func (c *Composite) Children() []Clause { return append([]Clause(nil), c.children...) }

func (c *Composite) Bound() bool { return c.binder != nil }

func (c *Composite) Binder() Binder { return c.binder }

func (c *Composite) unbind() {
	for _, child := range c.children {
		child.unbind()
	}
	c.binder = nil
}

// Bind binds every child to b. When a child fails the children bound
// before it are unbound again, so the composite can be rebound.
func (c *Composite) Bind(b Binder) error {
	if c.binder != nil {
		return ErrAlreadyBound
	}
	for i, child := range c.children {
		if err := child.Bind(b); err != nil {
			for _, done := range c.children[:i] {
				done.unbind()
			}
			return err
		}
	}
	c.binder = b
	return nil
}

func (c *Composite) Match(e *entity.Entity) bool {
	for _, child := range c.children {
		if child.Match(e) == c.or {
			return c.or
		}
	}
	return !c.or
}

func (c *Composite) SQL() (string, []any) {
	if len(c.children) == 0 {
		if c.or {
			return "(1 = 0)", nil
		}
		return "(1 = 1)", nil
	}
	sep := " AND "
	if c.or {
		sep = " OR "
	}
	parts := make([]string, 0, len(c.children))
	var params []any
	for _, child := range c.children {
		frag, p := child.SQL()
		parts = append(parts, frag)
		params = append(params, p...)
	}
	return "( " + strings.Join(parts, sep) + " )", params
}
