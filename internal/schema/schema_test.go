package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/value"
)

func TestBuild(t *testing.T) {
	s, err := New("Message").
		Text("subject").
		Int("size").
		Float("score").
		Bool("read").
		Bytes("digest").
		Stream("body").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "Message", s.Type())
	assert.Equal(t, []Field{
		{"subject", value.KindText},
		{"size", value.KindInt},
		{"score", value.KindFloat},
		{"read", value.KindBool},
		{"digest", value.KindBytes},
	}, s.Fields())
	assert.Equal(t, []string{"body"}, s.Streams())
	assert.True(t, s.HasStream("body"))

	f, ok := s.Field("size")
	require.True(t, ok)
	assert.Equal(t, value.KindInt, f.Kind)

	_, ok = s.Field("body")
	assert.False(t, ok, "stream fields are not scalar fields")
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"empty type", New("").Text("a")},
		{"empty field", New("T").Text("")},
		{"non identifier field", New("T").Text("a; DROP TABLE t")},
		{"non identifier type", New("9T").Text("a")},
		{"duplicate scalar", New("T").Text("a").Int("a")},
		{"stream shadows scalar", New("T").Text("a").Stream("a")},
		{"null kind", New("T").Field("a", value.KindNull)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			require.Error(t, err)
			assert.True(t, dberr.IsSchema(err))
		})
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("_id"))
	assert.True(t, ValidName("Message2"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("two words"))
	assert.False(t, ValidName("x-y"))
	assert.False(t, ValidName("order"))
	assert.False(t, ValidName("Select"))
	assert.True(t, ValidName("orders"))
	assert.True(t, ValidTypeName("Order"))
}

func TestBuilder_RejectsReservedWords(t *testing.T) {
	_, err := New("Task").Int("order").Build()
	require.Error(t, err)
	assert.True(t, dberr.IsSchema(err))
	assert.Contains(t, err.Error(), "reserved SQL word")

	_, err = New("Task").Stream("group").Build()
	assert.True(t, dberr.IsSchema(err))

	s, err := New("Order").Int("rank").Build()
	require.NoError(t, err)
	assert.Equal(t, "Order", s.Type())
}

func TestFieldsReturnsCopy(t *testing.T) {
	s := New("T").Text("a").MustBuild()
	fs := s.Fields()
	fs[0].Name = "mutated"
	_, ok := s.Field("a")
	assert.True(t, ok)
	assert.Equal(t, "a", s.Fields()[0].Name)
}

func TestMustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() { New("T").Text("a").Text("a").MustBuild() })
}
