package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/entitydb/internal/dberr"
)

// NewStreamCommand creates the stream command.
func NewStreamCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stream <table> <id> <field>",
		Short:         "Write the payload of a stream field to stdout",
		Args:          cobra.ExactArgs(3),
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
			field := args[2]

			e, err := t.Get(ctx, id)
			if err != nil {
				return formatter.Fail(ExitFailure, "stream failed", err)
			}
			if e == nil {
				return formatter.Fail(ExitFailure, "stream failed",
					dberr.New(dberr.CodeNotFound, "identity %s is absent", id).InTable(t.Name()))
			}
			rc, err := e.OpenStream(ctx, field)
			if err != nil {
				return formatter.Fail(ExitFailure, "stream failed", err)
			}
			if rc == nil {
				return formatter.Fail(ExitFailure, "stream failed",
					dberr.New(dberr.CodeNotFound, "no payload stored for %s", field).InTable(t.Name()).OnField(field))
			}
			defer rc.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
				return formatter.Fail(ExitFailure, "stream failed", dberr.Wrap(dberr.CodeStreamIO, err, "copy payload"))
			}
			return nil
		},
	}
}
