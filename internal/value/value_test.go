package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Value
		want   int
		wantOK bool
	}{
		{"text less", Text("a"), Text("b"), -1, true},
		{"text equal", Text("a"), Text("a"), 0, true},
		{"text is case sensitive", Text("B"), Text("a"), -1, true},
		{"int greater", Int(5), Int(3), 1, true},
		{"int vs float", Int(2), Float(2.5), -1, true},
		{"float vs int equal", Float(3), Int(3), 0, true},
		{"bool order", Bool(false), Bool(true), -1, true},
		{"bytes", Bytes("ab"), Bytes("ac"), -1, true},
		{"null left", Null{}, Int(1), 0, false},
		{"nil right", Text("x"), nil, 0, false},
		{"cross family", Text("1"), Int(1), 0, false},
		{"bool vs int", Bool(true), Int(1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEqual_NullSemantics(t *testing.T) {
	assert.True(t, Equal(Null{}, nil))
	assert.False(t, Equal(Null{}, Text("")))
	assert.True(t, Equal(Int(4), Float(4)))
	assert.False(t, Equal(Text("a"), Text("A")))
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(KindFloat, Int(3))
	require.NoError(t, err)
	assert.Equal(t, Float(3), v)

	v, err = Coerce(KindInt, Float(7))
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	_, err = Coerce(KindInt, Float(7.5))
	assert.Error(t, err)

	_, err = Coerce(KindText, Int(1))
	assert.Error(t, err)

	v, err = Coerce(KindText, nil)
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null{}},
		{"x", Text("x")},
		{int(3), Int(3)},
		{int64(-9), Int(-9)},
		{uint8(200), Int(200)},
		{float32(1.5), Float(1.5)},
		{true, Bool(true)},
		{[]byte("raw"), Bytes("raw")},
	}
	for _, tt := range tests {
		got, err := FromAny(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"string": KindText, "Text": KindText, "long": KindInt,
		"double": KindFloat, "bool": KindBool, "blob": KindBytes,
	} {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseKind("decimal")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	v, err := Parse(KindInt, "42")
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	v, err = Parse(KindBool, "true")
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)

	_, err = Parse(KindFloat, "abc")
	assert.Error(t, err)
}

func TestClone_BytesAreCopied(t *testing.T) {
	orig := Bytes("abc")
	c := Clone(orig).(Bytes)
	c[0] = 'z'
	assert.Equal(t, Bytes("abc"), orig)
}

func TestMarshalCanonical(t *testing.T) {
	obj := Object{
		"name":  Text("a<b>"),
		"count": Int(2),
		"ratio": Float(0.5),
		"flag":  Bool(true),
		"none":  Null{},
		"raw":   Bytes("hi"),
	}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t,
		`{"count":2,"flag":true,"name":"a<b>","none":null,"ratio":0.5,"raw":"aGk="}`,
		string(got))
}

func TestMarshalCanonical_NFCAndSeparators(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point, and
	// U+2028 stays a literal character.
	got, err := MarshalCanonical(Text("e\u0301\u2028"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\u2028\"", string(got))

	// A literal backslash followed by "u2028" keeps its escaped backslash.
	got, err = MarshalCanonical(Text(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Float(posInf()))
	assert.Error(t, err)
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}

func TestMarshalCanonical_NestedMaps(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"rows": []Object{{"b": Int(1), "a": Text("x")}},
		"ids":  []any{Int(2), "t"},
		"seq":  int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ids":[2,"t"],"rows":[{"a":"x","b":1}],"seq":3}`, string(got))
}
