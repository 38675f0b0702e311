package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/schema"
)

func decl(name, entityType, identity string) TableDecl {
	return TableDecl{
		Name:          name,
		Schema:        schema.New(entityType).Text("name").MustBuild(),
		IdentityField: identity,
	}
}

func TestValidate_Clean(t *testing.T) {
	errs := Validate([]TableDecl{decl("a", "A", "id"), decl("b", "B", "id")})
	assert.Empty(t, errs)
}

func TestValidate_CollectsAll(t *testing.T) {
	errs := Validate([]TableDecl{
		decl("a", "A", "id"),
		decl("a", "B", "id"),
		decl("c", "A", "name"),
		decl("bad name", "D", "9id"),
	})

	codes := make(map[string]int)
	for _, e := range errs {
		codes[e.Code]++
	}
	assert.Equal(t, map[string]int{
		ErrDuplicateTable:      1,
		ErrDuplicateEntityType: 1,
		ErrIdentityCollision:   1,
		ErrInvalidTableName:    1,
		ErrInvalidIdentity:     1,
	}, codes)
}

func TestValidationError_Format(t *testing.T) {
	errs := Validate([]TableDecl{decl("a", "A", "name")})
	require.Len(t, errs, 1)
	assert.Equal(t, `[E103] a.identity: identity field "name" is also declared as a field`, errs[0].Error())

	e := ValidationError{Table: "t", Field: "f", Message: "m", Code: "E101", Line: 3}
	assert.Equal(t, "[E101] line 3: t.f: m", e.Error())
}
