package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/where"
)

// QueryResult is the JSON payload of query.
type QueryResult struct {
	Table    string            `json:"table"`
	Where    string            `json:"where"`
	Count    int               `json:"count"`
	Entities []json.RawMessage `json:"entities"`
}

// CountResult is the JSON payload of count.
type CountResult struct {
	Table string `json:"table"`
	Where string `json:"where"`
	Count int    `json:"count"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filters FilterOptions
		order   string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "List entities matching a filter",
		Long: `List the entities of a table matching every condition (or any,
with --any). Without conditions all entities are listed.

--order takes a field name, prefixed with "-" for descending order.
Entities are in identity order otherwise.`,
		Example: `  entitydb query items --gt size=2 --prefix name=ap
  entitydb query items --eq name=apple --eq name=pear --any --order -size`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := newFormatter(rootOpts, cmd)

			sess, err := OpenSession(ctx, rootOpts)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open session", err)
			}
			defer sess.Close()

			t, err := sess.Table(args[0])
			if err != nil {
				return err
			}
			q, err := filters.Query(t)
			if err != nil {
				return formatter.Fail(ExitCommandError, "invalid filter", err)
			}
			if order != "" {
				cmp, err := orderBy(t, order)
				if err != nil {
					return formatter.Fail(ExitCommandError, "invalid order", err)
				}
				q = q.Sorted(cmp)
			}

			cur, err := t.Query(ctx, q)
			if err != nil {
				return formatter.Fail(ExitFailure, "query failed", err)
			}
			defer cur.Close()

			entities := cur.Entities()
			if limit > 0 && len(entities) > limit {
				entities = entities[:limit]
			}
			formatter.VerboseLog("Matched %d of %s where %s", cur.Count(), t.Name(), describe(q))

			if formatter.Format == "json" {
				res := QueryResult{Table: t.Name(), Where: describe(q), Count: cur.Count(),
					Entities: make([]json.RawMessage, 0, len(entities))}
				for _, e := range entities {
					data, err := entityJSON(t, e)
					if err != nil {
						return err
					}
					res.Entities = append(res.Entities, data)
				}
				return formatter.Success(res)
			}
			for _, e := range entities {
				writeEntityText(formatter.Writer, t, e)
			}
			fmt.Fprintf(formatter.Writer, "(%d rows)\n", cur.Count())
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVar(&order, "order", "", "order by field (prefix with - for descending)")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many entities (0 = all)")
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	var filters FilterOptions

	cmd := &cobra.Command{
		Use:           "count <table>",
		Short:         "Count entities matching a filter",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := newFormatter(rootOpts, cmd)

			sess, err := OpenSession(ctx, rootOpts)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open session", err)
			}
			defer sess.Close()

			t, err := sess.Table(args[0])
			if err != nil {
				return err
			}

			var n int
			q, err := filters.Query(t)
			if err != nil {
				return formatter.Fail(ExitCommandError, "invalid filter", err)
			}
			if filters.IsEmpty() {
				n, err = t.Count(ctx)
			} else {
				n, err = t.QueryCount(ctx, q)
			}
			if err != nil {
				return formatter.Fail(ExitFailure, "count failed", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(CountResult{Table: t.Name(), Where: describe(q), Count: n})
			}
			fmt.Fprintln(formatter.Writer, n)
			return nil
		},
	}

	filters.register(cmd)
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filters      FilterOptions
		individually bool
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "delete <table> [id]",
		Short: "Delete one entity or every entity matching a filter",
		Long: `Delete the entity stored under id, or every entity matching the
filter. Deleting without an id or a condition requires --all.

--individually deletes matches one at a time so delete triggers and
entity observers see each of them.`,
		Example: `  entitydb delete items 3
  entitydb delete items --lt size=2 --individually
  entitydb delete items --all`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := newFormatter(rootOpts, cmd)

			if len(args) == 2 && !filters.IsEmpty() {
				return NewExitError(ExitCommandError, "pass either an id or filter conditions, not both")
			}
			if len(args) == 1 && filters.IsEmpty() && !all {
				return NewExitError(ExitCommandError, "refusing to delete every entity without --all")
			}

			sess, err := OpenSession(ctx, rootOpts)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open session", err)
			}
			defer sess.Close()

			t, err := sess.Table(args[0])
			if err != nil {
				return err
			}

			if len(args) == 2 {
				id, err := t.ParseID(args[1])
				if err != nil {
					return formatter.Fail(ExitCommandError, "invalid id", err)
				}
				ok, err := t.Delete(ctx, id)
				if err != nil {
					return formatter.Fail(ExitFailure, "delete failed", err)
				}
				if !ok {
					return formatter.Fail(ExitFailure, "delete failed",
						dberr.New(dberr.CodeNotFound, "identity %s is absent", id).InTable(t.Name()))
				}
				return reportDeleted(formatter, t, 1)
			}

			q, err := filters.Query(t)
			if err != nil {
				return formatter.Fail(ExitCommandError, "invalid filter", err)
			}
			var n int
			if individually {
				n, err = t.DeleteManyIndividually(ctx, q)
			} else {
				n, err = t.DeleteMany(ctx, q)
			}
			if err != nil {
				return formatter.Fail(ExitFailure, "delete failed", err)
			}
			return reportDeleted(formatter, t, n)
		},
	}

	filters.register(cmd)
	cmd.Flags().BoolVar(&individually, "individually", false, "delete matches one at a time, running delete triggers")
	cmd.Flags().BoolVar(&all, "all", false, "allow deleting every entity of the table")
	return cmd
}

func reportDeleted(formatter *OutputFormatter, t *entitydb.Table, n int) error {
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"table": t.Name(), "deleted": n})
	}
	fmt.Fprintf(formatter.Writer, "%s: %d deleted\n", t.Name(), n)
	return nil
}

// orderBy parses an --order value: a field name, "-" prefixed for
// descending order.
func orderBy(t *entitydb.Table, spec string) (where.Comparator, error) {
	field, desc := strings.CutPrefix(spec, "-")
	if field == t.IdentityField() {
		if desc {
			return func(a, b *entity.Entity) int { return where.ByID(b, a) }, nil
		}
		return where.ByID, nil
	}
	if _, ok := t.Schema().Field(field); !ok {
		return nil, dberr.New(dberr.CodeSchema, "unknown field %q", field).InTable(t.Name()).OnField(field)
	}
	if desc {
		return where.Descending(field), nil
	}
	return where.Ascending(field), nil
}

// describe renders the clause of q for output; "all" when unfiltered.
func describe(q *entitydb.Query) string {
	if q.Clause() == nil {
		return "all"
	}
	sql, args := q.SQL()
	if len(args) == 0 {
		return sql
	}
	return fmt.Sprintf("%s %v", sql, args)
}
