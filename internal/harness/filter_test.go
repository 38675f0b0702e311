package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Clause(t *testing.T) {
	tests := []struct {
		name     string
		filter   *Filter
		wantSQL  string
		wantArgs []any
	}{
		{"nil matches all", nil, "", nil},
		{"empty matches all", &Filter{}, "", nil},
		{"single leaf", &Filter{Ne: map[string]any{"size": 1}}, "(size <> ?)", []any{int64(1)}},
		{
			"fields combine in name order",
			&Filter{Eq: map[string]any{"size": 1, "name": "a"}},
			"( (name = ?) AND (size = ?) )",
			[]any{"a", int64(1)},
		},
		{
			"ops combine in fixed order",
			&Filter{Lt: map[string]any{"size": 9}, Ge: map[string]any{"size": 2}, Empty: []string{"name"}},
			"( (size >= ?) AND (size < ?) AND (name IS NULL OR name = '') )",
			[]any{int64(2), int64(9)},
		},
		{"explicit empty or", &Filter{Or: []Filter{}}, "(1 = 0)", nil},
		{"empty child of and", &Filter{And: []Filter{{}}}, "( (1 = 1) )", nil},
		{"like", &Filter{Like: map[string]string{"name": "5%"}}, `(name LIKE ? ESCAPE '\')`, []any{`%5\%%`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.filter.Clause()
			if tt.wantSQL == "" {
				assert.Nil(t, c)
				return
			}
			sql, args := c.SQL()
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFilter_String(t *testing.T) {
	var f *Filter
	assert.Equal(t, "all", f.String())
	assert.Equal(t, "(size > ?) [3]", (&Filter{Gt: map[string]any{"size": 3}}).String())
}
