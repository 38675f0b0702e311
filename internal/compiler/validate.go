package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/entitydb/internal/schema"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidTableName    = "E101" // table name is not an identifier
	ErrInvalidIdentity     = "E102" // identity field is not an identifier
	ErrIdentityCollision   = "E103" // identity field shadows a declared field
	ErrDuplicateTable      = "E104" // table declared twice
	ErrDuplicateEntityType = "E105" // entity type bound to two tables
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Table   string `json:"table"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s.%s: %s", e.Code, e.Line, e.Table, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Table, e.Field, e.Message)
}

// Validate checks compiled declarations against the registry rules of a
// database. Returns all errors found (does not fail-fast).
func Validate(decls []TableDecl) []ValidationError {
	var errs []ValidationError
	tables := make(map[string]bool)
	types := make(map[string]string)

	for _, d := range decls {
		line := 0
		if d.Pos.IsValid() {
			line = d.Pos.Line()
		}
		add := func(code, field, format string, args ...any) {
			errs = append(errs, ValidationError{
				Table: d.Name, Field: field, Code: code, Line: line,
				Message: fmt.Sprintf(format, args...),
			})
		}

		if !schema.ValidName(d.Name) {
			add(ErrInvalidTableName, "name", "invalid table name %q", d.Name)
		}
		if !schema.ValidName(d.IdentityField) {
			add(ErrInvalidIdentity, "identity", "invalid identity field %q", d.IdentityField)
		}
		if d.Schema != nil {
			_, shadowsField := d.Schema.Field(d.IdentityField)
			if shadowsField || d.Schema.HasStream(d.IdentityField) {
				add(ErrIdentityCollision, "identity", "identity field %q is also declared as a field", d.IdentityField)
			}
		}

		if tables[d.Name] {
			add(ErrDuplicateTable, "name", "table %q declared more than once", d.Name)
		}
		tables[d.Name] = true

		if d.Schema == nil {
			continue
		}
		if prev, ok := types[d.Schema.Type()]; ok {
			add(ErrDuplicateEntityType, "entity", "entity type %q already bound to table %q", d.Schema.Type(), prev)
		} else {
			types[d.Schema.Type()] = d.Name
		}
	}

	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		return strings.Compare(a.Table, b.Table)
	})
	return errs
}
