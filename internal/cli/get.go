package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/entitydb/internal/dberr"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <table> <id>",
		Short:         "Print one entity",
		Args:          cobra.ExactArgs(2),
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
			id, err := t.ParseID(args[1])
			if err != nil {
				return formatter.Fail(ExitCommandError, "invalid id", err)
			}

			e, err := t.Get(ctx, id)
			if err != nil {
				return formatter.Fail(ExitFailure, "get failed", err)
			}
			if e == nil {
				return formatter.Fail(ExitFailure, "get failed",
					dberr.New(dberr.CodeNotFound, "identity %s is absent", id).InTable(t.Name()))
			}

			if formatter.Format == "json" {
				data, err := entityJSON(t, e)
				if err != nil {
					return err
				}
				return formatter.Success(data)
			}
			writeEntityText(formatter.Writer, t, e)
			return nil
		},
	}
}
