package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the field value variants.
// Only Null, Text, Int, Float, Bool and Bytes implement it.
type Value interface {
	Kind() Kind
	value() // Sealed - only these types implement it
}

// Kind identifies a Value variant. It doubles as the declared type of a
// schema field.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
	KindBool
	KindBytes
)

var kindNames = [...]string{
	KindNull:  "null",
	KindText:  "text",
	KindInt:   "int",
	KindFloat: "float",
	KindBool:  "bool",
	KindBytes: "bytes",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a declared type name to a Kind.
// "string" and "text" are synonyms, as are "int"/"long" and "float"/"double".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "string", "text":
		return KindText, nil
	case "int", "long", "integer":
		return KindInt, nil
	case "float", "double", "real":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "bytes", "blob":
		return KindBytes, nil
	default:
		return KindNull, fmt.Errorf("unknown field type %q", name)
	}
}

// Numeric reports whether values of this kind compare numerically.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Null is the absent value. The zero Null is the only Null.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) value()     {}

// Text is a UTF-8 string value.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) value()     {}

// Int is a signed 64-bit integer value. Narrower integer fields (int,
// char, byte) are stored as Int.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) value()     {}

// Float is a 64-bit floating point value.
type Float float64

func (Float) Kind() Kind { return KindFloat }
func (Float) value()     {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) value()     {}

// Bytes is an opaque binary value. Treat it as immutable once stored.
type Bytes []byte

func (Bytes) Kind() Kind { return KindBytes }
func (Bytes) value()     {}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Of returns v, or Null when v is nil.
func Of(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// Clone returns a copy of v that shares no memory with it.
func Clone(v Value) Value {
	if b, ok := v.(Bytes); ok {
		return Bytes(bytes.Clone(b))
	}
	return Of(v)
}

// Compare orders a and b. ok is false when the two values are not
// comparable: either side is Null, or the variants belong to different
// families. Int and Float compare numerically with each other.
func Compare(a, b Value) (cmp int, ok bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	switch av := a.(type) {
	case Text:
		bv, isText := b.(Text)
		if !isText {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	case Int:
		switch bv := b.(type) {
		case Int:
			return compareInt(int64(av), int64(bv)), true
		case Float:
			return compareFloat(float64(av), float64(bv)), true
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return compareFloat(float64(av), float64(bv)), true
		case Float:
			return compareFloat(float64(av), float64(bv)), true
		}
	case Bool:
		bv, isBool := b.(Bool)
		if !isBool {
			return 0, false
		}
		return compareInt(boolInt(bool(av)), boolInt(bool(bv))), true
	case Bytes:
		bv, isBytes := b.(Bytes)
		if !isBytes {
			return 0, false
		}
		return bytes.Compare(av, bv), true
	}
	return 0, false
}

// Equal reports whether a and b hold the same value. Two Nulls are equal;
// Null never equals a non-null value.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Compatible reports whether a value of kind k can be stored in, or
// compared against, a field declared with kind field.
func Compatible(field, k Kind) bool {
	if k == KindNull || field == k {
		return true
	}
	return field.Numeric() && k.Numeric()
}

// Coerce converts v to the declared field kind. Int widens to Float and
// integral Floats narrow to Int; any other mismatch is an error.
func Coerce(field Kind, v Value) (Value, error) {
	v = Of(v)
	if v.Kind() == KindNull || v.Kind() == field {
		return v, nil
	}
	switch field {
	case KindFloat:
		if i, ok := v.(Int); ok {
			return Float(i), nil
		}
	case KindInt:
		if f, ok := v.(Float); ok && f == Float(math.Trunc(float64(f))) {
			return Int(int64(f)), nil
		}
	}
	return nil, fmt.Errorf("cannot store %s value in %s field", v.Kind(), field)
}

// FromAny converts a native Go value, as produced by database/sql scans,
// YAML or JSON decoding, into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case []byte:
		return Bytes(bytes.Clone(val)), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of int64 range", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToParam converts v into a database/sql driver argument.
func ToParam(v Value) any {
	switch val := Of(v).(type) {
	case Text:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Bytes:
		return []byte(val)
	default:
		return nil
	}
}

// Parse interprets s as a literal of the given kind. It is used by the
// CLI, where every operand arrives as a string.
func Parse(k Kind, s string) (Value, error) {
	switch k {
	case KindText:
		return Text(s), nil
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", s, err)
		}
		return Int(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", s, err)
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return Bool(b), nil
	case KindBytes:
		return Bytes(s), nil
	default:
		return Null{}, nil
	}
}

// String renders v for logs and text output.
func String(v Value) string {
	switch val := Of(v).(type) {
	case Text:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Bytes:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return "null"
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
