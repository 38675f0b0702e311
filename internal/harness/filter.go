package harness

import (
	"fmt"

	"github.com/roach88/entitydb/internal/where"
)

// Filter is the YAML form of a where clause:
//
//	where:
//	  or:
//	    - eq: { name: a }
//	    - and:
//	        - gt: { size: 2 }
//	        - prefix: { name: b }
//
// Every condition in one Filter must hold. Fields within a comparison map
// are combined in name order.
type Filter struct {
	And    []Filter          `yaml:"and,omitempty"`
	Or     []Filter          `yaml:"or,omitempty"`
	Eq     map[string]any    `yaml:"eq,omitempty"`
	Ne     map[string]any    `yaml:"ne,omitempty"`
	Gt     map[string]any    `yaml:"gt,omitempty"`
	Ge     map[string]any    `yaml:"ge,omitempty"`
	Lt     map[string]any    `yaml:"lt,omitempty"`
	Le     map[string]any    `yaml:"le,omitempty"`
	Like   map[string]string `yaml:"like,omitempty"`
	Prefix map[string]string `yaml:"prefix,omitempty"`
	Empty  []string          `yaml:"empty,omitempty"`
}

// Clause builds the unbound where clause. A nil or empty Filter yields
// nil, which matches every entity.
func (f *Filter) Clause() where.Clause {
	if f == nil {
		return nil
	}
	var parts []where.Clause
	if f.And != nil {
		parts = append(parts, where.And(children(f.And)...))
	}
	if f.Or != nil {
		parts = append(parts, where.Or(children(f.Or)...))
	}
	parts = appendLeaves(parts, f.Eq, where.Equals)
	parts = appendLeaves(parts, f.Ne, where.NotEquals)
	parts = appendLeaves(parts, f.Gt, where.Greater)
	parts = appendLeaves(parts, f.Ge, where.GreaterOrEqual)
	parts = appendLeaves(parts, f.Lt, where.Less)
	parts = appendLeaves(parts, f.Le, where.LessOrEqual)
	parts = appendLeaves(parts, f.Like, where.Like)
	parts = appendLeaves(parts, f.Prefix, where.LeftLike)
	for _, field := range f.Empty {
		parts = append(parts, where.IsEmpty(field))
	}

	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return where.And(parts...)
	}
}

// String renders the filter for assertion messages.
func (f *Filter) String() string {
	c := f.Clause()
	if c == nil {
		return "all"
	}
	sql, args := c.SQL()
	return fmt.Sprintf("%s %v", sql, args)
}

func children(fs []Filter) []where.Clause {
	out := make([]where.Clause, 0, len(fs))
	for i := range fs {
		if c := fs[i].Clause(); c != nil {
			out = append(out, c)
		} else {
			out = append(out, where.And())
		}
	}
	return out
}

func appendLeaves[V any](parts []where.Clause, m map[string]V, leaf func(string, V) *where.Leaf) []where.Clause {
	for _, k := range sortedKeys(m) {
		parts = append(parts, leaf(k, m[k]))
	}
	return parts
}
