// Package schema describes the declared fields of one entity type.
//
// A Schema is built once, up front, with the Builder and is immutable
// afterwards. Tables derive their column set from it and clauses resolve
// field references against it; nothing is discovered at runtime.
package schema

import (
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/value"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords are the keywords SQLite or PostgreSQL refuse as bare
// column or table names.
var reservedWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		all alter analyse analyze and any array as asc asymmetric
		authorization between binary both by case cast check collate column
		concurrently constraint create cross current_date current_time
		current_timestamp current_user default deferrable delete desc distinct
		do drop else end escape except exists false fetch for foreign freeze
		from full grant group having ilike in index initially inner insert
		intersect into is isnull join lateral leading left like limit
		localtime localtimestamp natural not notnull null offset on only or
		order outer overlaps placing primary references returning right
		select session_user set similar some symmetric table tablesample then
		to trailing transaction true union unique update user using values
		variadic verbose when where window with`) {
		reservedWords[w] = true
	}
}

// ValidName reports whether name can be used as a table or field name.
// Names are rendered into SQL unquoted, so only identifiers that are not
// reserved SQL words are accepted, whatever the backend.
func ValidName(name string) bool {
	return identPattern.MatchString(name) && !Reserved(name)
}

// Reserved reports whether name is a reserved SQL word, ignoring case.
func Reserved(name string) bool {
	return reservedWords[strings.ToLower(name)]
}

// ValidTypeName reports whether name can be used as an entity type name.
// Type names never reach SQL, so reserved words are allowed.
func ValidTypeName(name string) bool {
	return identPattern.MatchString(name)
}

// Field is one declared scalar field.
type Field struct {
	Name string
	Kind value.Kind
}

// Schema is the descriptor of one entity type.
type Schema struct {
	typ     string
	fields  []Field
	index   map[string]int
	streams []string
}

// Type returns the entity type name.
func (s *Schema) Type() string {
	return s.typ
}

// Fields returns the scalar fields in declaration order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Field looks up a scalar field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Streams returns the stream field names in declaration order.
func (s *Schema) Streams() []string {
	return slices.Clone(s.streams)
}

// HasStream reports whether name is a declared stream field.
func (s *Schema) HasStream(name string) bool {
	return slices.Contains(s.streams, name)
}

// Builder assembles a Schema. Errors are collected and reported by Build.
type Builder struct {
	typ     string
	fields  []Field
	streams []string
	seen    map[string]bool
	err     error
}

// New starts a schema for the named entity type.
func New(entityType string) *Builder {
	b := &Builder{typ: entityType, seen: make(map[string]bool)}
	if !ValidTypeName(entityType) {
		b.err = dberr.New(dberr.CodeSchema, "invalid entity type name %q", entityType)
	}
	return b
}

// Field declares a scalar field of the given kind.
func (b *Builder) Field(name string, kind value.Kind) *Builder {
	if !b.claim(name) {
		return b
	}
	if kind == value.KindNull {
		b.fail(dberr.New(dberr.CodeSchema, "field %q has no type", name).OnField(name))
		return b
	}
	b.fields = append(b.fields, Field{Name: name, Kind: kind})
	return b
}

func (b *Builder) Text(name string) *Builder  { return b.Field(name, value.KindText) }
func (b *Builder) Int(name string) *Builder   { return b.Field(name, value.KindInt) }
func (b *Builder) Float(name string) *Builder { return b.Field(name, value.KindFloat) }
func (b *Builder) Bool(name string) *Builder  { return b.Field(name, value.KindBool) }
func (b *Builder) Bytes(name string) *Builder { return b.Field(name, value.KindBytes) }

// Stream declares an externalized stream field.
func (b *Builder) Stream(name string) *Builder {
	if b.claim(name) {
		b.streams = append(b.streams, name)
	}
	return b
}

func (b *Builder) claim(name string) bool {
	switch {
	case Reserved(name):
		b.fail(dberr.New(dberr.CodeSchema, "field name %q in %s is a reserved SQL word", name, b.typ).OnField(name))
		return false
	case !ValidName(name):
		b.fail(dberr.New(dberr.CodeSchema, "invalid field name %q in %s", name, b.typ).OnField(name))
		return false
	case b.seen[name]:
		b.fail(dberr.New(dberr.CodeSchema, "duplicate field %q in %s", name, b.typ).OnField(name))
		return false
	}
	b.seen[name] = true
	return true
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the finished schema or the first declaration error.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := &Schema{
		typ:     b.typ,
		fields:  slices.Clone(b.fields),
		index:   make(map[string]int, len(b.fields)),
		streams: slices.Clone(b.streams),
	}
	for i, f := range s.fields {
		s.index[f.Name] = i
	}
	return s, nil
}

// MustBuild is Build for package-level fixtures; it panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
