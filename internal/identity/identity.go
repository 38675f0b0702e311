// Package identity defines the primary key of an entity within a table and
// the pluggable generators that assign it.
//
// An ID is either a 64-bit integer or an opaque token. The zero ID means
// "no identity": a detached entity carries it until its first insert.
// IDs are comparable with == and usable as map keys.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entitydb/internal/value"
)

type idKind uint8

const (
	kindNone idKind = iota
	kindInt
	kindToken
)

// ID is an ordered, immutable primary-key value.
type ID struct {
	kind idKind
	n    int64
	tok  string
}

// None is the zero ID.
var None ID

// Int returns an integer identity.
func Int(n int64) ID {
	return ID{kind: kindInt, n: n}
}

// Token returns an opaque token identity. The empty token is None.
func Token(s string) ID {
	if s == "" {
		return None
	}
	return ID{kind: kindToken, tok: s}
}

// IsZero reports whether id is None.
func (id ID) IsZero() bool {
	return id.kind == kindNone
}

// AsInt returns the integer form of id.
func (id ID) AsInt() (int64, bool) {
	return id.n, id.kind == kindInt
}

// AsToken returns the token form of id.
func (id ID) AsToken() (string, bool) {
	return id.tok, id.kind == kindToken
}

// Kind returns the value kind used to store id: KindInt, KindText, or
// KindNull for None.
func (id ID) Kind() value.Kind {
	switch id.kind {
	case kindInt:
		return value.KindInt
	case kindToken:
		return value.KindText
	default:
		return value.KindNull
	}
}

// Value converts id into a field value.
func (id ID) Value() value.Value {
	switch id.kind {
	case kindInt:
		return value.Int(id.n)
	case kindToken:
		return value.Text(id.tok)
	default:
		return value.Null{}
	}
}

func (id ID) String() string {
	switch id.kind {
	case kindInt:
		return strconv.FormatInt(id.n, 10)
	case kindToken:
		return id.tok
	default:
		return "<none>"
	}
}

// Compare orders identities: None first, then integers numerically, then
// tokens lexicographically.
func Compare(a, b ID) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case kindInt:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case kindToken:
		return strings.Compare(a.tok, b.tok)
	}
	return 0
}

// FromValue converts a stored field value back into an ID.
func FromValue(v value.Value) (ID, error) {
	switch val := value.Of(v).(type) {
	case value.Null:
		return None, nil
	case value.Int:
		return Int(int64(val)), nil
	case value.Text:
		return Token(string(val)), nil
	case value.Float:
		f := float64(val)
		if f != float64(int64(f)) {
			return None, fmt.Errorf("non-integral identity %v", f)
		}
		return Int(int64(f)), nil
	default:
		return None, fmt.Errorf("cannot use %s value as identity", v.Kind())
	}
}

// Parse reads an identity of the given kind from its string form.
func Parse(k value.Kind, s string) (ID, error) {
	switch k {
	case value.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return None, fmt.Errorf("parse identity %q: %w", s, err)
		}
		return Int(n), nil
	case value.KindText:
		return Token(s), nil
	default:
		return None, fmt.Errorf("unsupported identity kind %s", k)
	}
}
