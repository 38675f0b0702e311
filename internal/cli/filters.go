package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// FilterOptions holds the clause flags shared by query, count and delete.
// Each comparison flag takes field=value and may repeat.
type FilterOptions struct {
	Eq     []string
	Ne     []string
	Gt     []string
	Ge     []string
	Lt     []string
	Le     []string
	Like   []string
	Prefix []string
	Empty  []string
	Any    bool // combine with OR instead of AND
}

func (o *FilterOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&o.Eq, "eq", nil, "field=value: field equals value")
	f.StringArrayVar(&o.Ne, "ne", nil, "field=value: field differs from value")
	f.StringArrayVar(&o.Gt, "gt", nil, "field=value: field greater than value")
	f.StringArrayVar(&o.Ge, "ge", nil, "field=value: field greater than or equal to value")
	f.StringArrayVar(&o.Lt, "lt", nil, "field=value: field less than value")
	f.StringArrayVar(&o.Le, "le", nil, "field=value: field less than or equal to value")
	f.StringArrayVar(&o.Like, "like", nil, "field=text: text field contains text")
	f.StringArrayVar(&o.Prefix, "prefix", nil, "field=text: text field starts with text")
	f.StringArrayVar(&o.Empty, "empty", nil, "field: field is null (or empty text)")
	f.BoolVar(&o.Any, "any", false, "match any condition instead of all")
}

// IsEmpty reports whether no condition was given.
func (o *FilterOptions) IsEmpty() bool {
	return len(o.Eq)+len(o.Ne)+len(o.Gt)+len(o.Ge)+len(o.Lt)+len(o.Le)+
		len(o.Like)+len(o.Prefix)+len(o.Empty) == 0
}

// Clause builds the clause for t. Operands are parsed as the declared kind
// of their field. No conditions yields nil, which matches every entity.
func (o *FilterOptions) Clause(t *entitydb.Table) (where.Clause, error) {
	var leaves []where.Clause
	add := func(args []string, leaf func(string, any) *where.Leaf) error {
		for _, arg := range args {
			field, raw, ok := strings.Cut(arg, "=")
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid condition %q: want field=value", arg))
			}
			v, err := parseOperand(t, field, raw)
			if err != nil {
				return err
			}
			leaves = append(leaves, leaf(field, v))
		}
		return nil
	}
	text := func(mk func(string, string) *where.Leaf) func(string, any) *where.Leaf {
		return func(field string, v any) *where.Leaf {
			s, _ := v.(value.Text)
			return mk(field, string(s))
		}
	}

	for _, c := range []struct {
		args []string
		leaf func(string, any) *where.Leaf
	}{
		{o.Eq, where.Equals},
		{o.Ne, where.NotEquals},
		{o.Gt, where.Greater},
		{o.Ge, where.GreaterOrEqual},
		{o.Lt, where.Less},
		{o.Le, where.LessOrEqual},
		{o.Like, text(where.Like)},
		{o.Prefix, text(where.LeftLike)},
	} {
		if err := add(c.args, c.leaf); err != nil {
			return nil, err
		}
	}
	for _, field := range o.Empty {
		leaves = append(leaves, where.IsEmpty(field))
	}

	switch {
	case len(leaves) == 0:
		return nil, nil
	case len(leaves) == 1:
		return leaves[0], nil
	case o.Any:
		return where.Or(leaves...), nil
	default:
		return where.And(leaves...), nil
	}
}

// Query builds the bound query for t.
func (o *FilterOptions) Query(t *entitydb.Table) (*entitydb.Query, error) {
	c, err := o.Clause(t)
	if err != nil {
		return nil, err
	}
	return t.NewQuery(c)
}

// parseOperand parses raw as the kind of field. "null" is the null
// operand for any field.
func parseOperand(t *entitydb.Table, field, raw string) (value.Value, error) {
	if raw == "null" {
		return value.Null{}, nil
	}
	kind := t.IdentityKind()
	if field != t.IdentityField() {
		f, ok := t.Schema().Field(field)
		if !ok {
			return nil, dberr.New(dberr.CodeSchema, "unknown field %q", field).InTable(t.Name()).OnField(field)
		}
		kind = f.Kind
	}
	v, err := value.Parse(kind, raw)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeSchema, err, "operand").InTable(t.Name()).OnField(field)
	}
	return v, nil
}
