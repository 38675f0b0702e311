// Package compiler turns CUE table declarations into table specs.
//
// A declaration file holds a top-level "table" struct keyed by table
// name:
//
//	table: items: {
//		entity:   "Item"
//		identity: "id"
//		fields: {
//			name:  string
//			size:  int
//			score: float
//		}
//		streams: ["body"]
//		cache: true
//	}
//
// Field types are CUE kinds (string, int, float, number, bool, bytes) or
// the type names value.ParseKind accepts, e.g. "long".
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
)

// Generator names.
const (
	GeneratorSequence = "sequence"
	GeneratorUUIDv7   = "uuidv7"
)

// TableDecl is a compiled table declaration.
type TableDecl struct {
	Name          string
	Schema        *schema.Schema
	IdentityField string
	IdentityKind  value.Kind
	Generator     string
	Cache         bool
	CacheSize     int
	Pos           token.Pos
}

// NewGenerator returns a fresh generator for the declaration.
func (d TableDecl) NewGenerator() identity.Generator {
	if d.Generator == GeneratorUUIDv7 {
		return identity.UUIDv7{}
	}
	return identity.NewSequence()
}

// TableSpec returns the spec creating the declared table.
func (d TableDecl) TableSpec() entitydb.TableSpec {
	return entitydb.TableSpec{
		Name:         d.Name,
		Schema:       d.Schema,
		Identity:     d.IdentityField,
		IdentityKind: d.IdentityKind,
		Generator:    d.NewGenerator(),
		Cache:        d.Cache,
		CacheSize:    d.CacheSize,
	}
}

// CompileTable parses one CUE table struct into a TableDecl.
//
// The CUE value should be the table struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: items: { ... }`)
//	decl, err := CompileTable(v.LookupPath(cue.ParsePath("table.items")))
func CompileTable(v cue.Value) (*TableDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "table", Message: "table declaration not found", Pos: v.Pos()}
	}

	decl := &TableDecl{
		IdentityField: entitydb.DefaultIdentityField,
		IdentityKind:  value.KindInt,
		Pos:           v.Pos(),
	}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		decl.Name = labels[len(labels)-1].String()
	}

	entityType, err := lookupString(v, "entity", true)
	if err != nil {
		return nil, err
	}
	if decl.IdentityField, err = lookupString(v, "identity", false); err != nil {
		return nil, err
	}
	if decl.IdentityField == "" {
		decl.IdentityField = entitydb.DefaultIdentityField
	}

	kindName, err := lookupString(v, "identity_kind", false)
	if err != nil {
		return nil, err
	}
	switch kindName {
	case "", "int":
	case "text", "string":
		decl.IdentityKind = value.KindText
	default:
		return nil, &CompileError{
			Field:   "identity_kind",
			Message: fmt.Sprintf("identity kind must be int or text, got %q", kindName),
			Pos:     v.LookupPath(cue.ParsePath("identity_kind")).Pos(),
		}
	}

	if decl.Generator, err = lookupString(v, "generator", false); err != nil {
		return nil, err
	}
	switch decl.Generator {
	case "":
		decl.Generator = GeneratorSequence
		if decl.IdentityKind == value.KindText {
			decl.Generator = GeneratorUUIDv7
		}
	case GeneratorSequence:
		if decl.IdentityKind == value.KindText {
			return nil, &CompileError{Field: "generator", Message: "sequence generator requires int identities", Pos: v.Pos()}
		}
	case GeneratorUUIDv7:
		if decl.IdentityKind != value.KindText {
			return nil, &CompileError{Field: "generator", Message: "uuidv7 generator requires text identities", Pos: v.Pos()}
		}
	default:
		return nil, &CompileError{
			Field:   "generator",
			Message: fmt.Sprintf("unknown generator %q", decl.Generator),
			Pos:     v.LookupPath(cue.ParsePath("generator")).Pos(),
		}
	}

	if err := parseCache(v, decl); err != nil {
		return nil, err
	}

	b := schema.New(entityType)
	if err := parseFields(v, b); err != nil {
		return nil, err
	}
	if err := parseStreams(v, b); err != nil {
		return nil, err
	}
	s, err := b.Build()
	if err != nil {
		return nil, &CompileError{Field: "fields", Message: err.Error(), Pos: v.Pos()}
	}
	decl.Schema = s
	return decl, nil
}

func lookupString(v cue.Value, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// parseCache accepts either `cache: bool` or `cache: {size: int}`.
func parseCache(v cue.Value, decl *TableDecl) error {
	cv := v.LookupPath(cue.ParsePath("cache"))
	if !cv.Exists() {
		return nil
	}
	if on, err := cv.Bool(); err == nil {
		decl.Cache = on
		return nil
	}
	sv := cv.LookupPath(cue.ParsePath("size"))
	if !sv.Exists() {
		return &CompileError{Field: "cache", Message: "cache must be a bool or {size: int}", Pos: cv.Pos()}
	}
	size, err := sv.Int64()
	if err != nil {
		return formatCUEError(err)
	}
	if size <= 0 {
		return &CompileError{Field: "cache.size", Message: "cache size must be positive", Pos: sv.Pos()}
	}
	decl.Cache = true
	decl.CacheSize = int(size)
	return nil
}

func parseFields(v cue.Value, b *schema.Builder) error {
	fv := v.LookupPath(cue.ParsePath("fields"))
	if !fv.Exists() {
		return nil // a table may hold identity-only entities
	}
	iter, err := fv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		kind, err := extractKind(iter.Value())
		if err != nil {
			return err
		}
		b.Field(iter.Label(), kind)
	}
	return nil
}

func parseStreams(v cue.Value, b *schema.Builder) error {
	sv := v.LookupPath(cue.ParsePath("streams"))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		b.Stream(name)
	}
	return nil
}

// extractKind converts a CUE type, or a concrete type name, to a Kind.
func extractKind(v cue.Value) (value.Kind, error) {
	if name, err := v.String(); err == nil {
		k, err := value.ParseKind(name)
		if err != nil {
			return value.KindNull, &CompileError{Field: "type", Message: err.Error(), Pos: v.Pos()}
		}
		return k, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return value.KindText, nil
	case cue.IntKind:
		return value.KindInt, nil
	case cue.FloatKind, cue.NumberKind:
		return value.KindFloat, nil
	case cue.BoolKind:
		return value.KindBool, nil
	case cue.BytesKind:
		return value.KindBytes, nil
	default:
		return value.KindNull, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
