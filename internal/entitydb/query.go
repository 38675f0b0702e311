package entitydb

import (
	"github.com/roach88/entitydb/internal/where"
)

// Query is a bound predicate over one table with an optional result
// order. A nil clause selects every entity.
type Query struct {
	table  *Table
	clause where.Clause
	order  where.Comparator
}

// NewQuery creates a query over t. An unbound clause is bound to the
// table; binding failures and clauses bound to another table are schema
// errors.
func (t *Table) NewQuery(clause where.Clause) (*Query, error) {
	if clause != nil {
		if err := t.bind(clause); err != nil {
			return nil, err
		}
	}
	return &Query{table: t, clause: clause}, nil
}

// MustQuery is NewQuery for statically known clauses. It panics on error.
func (t *Table) MustQuery(clause where.Clause) *Query {
	q, err := t.NewQuery(clause)
	if err != nil {
		panic(err)
	}
	return q
}

// Sorted returns a copy of q whose results are ordered by cmp. Results
// without a comparator come back in identity order.
func (q *Query) Sorted(cmp where.Comparator) *Query {
	c := *q
	c.order = cmp
	return &c
}

// Table returns the table the query runs against.
func (q *Query) Table() *Table { return q.table }

// Clause returns the bound clause, or nil for a match-all query.
func (q *Query) Clause() where.Clause { return q.clause }

// Order returns the result comparator, or nil.
func (q *Query) Order() where.Comparator { return q.order }

// SQL renders the query predicate as a WHERE fragment with ? placeholders.
func (q *Query) SQL() (string, []any) {
	if q.clause == nil {
		return where.And().SQL()
	}
	return q.clause.SQL()
}
