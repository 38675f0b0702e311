package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version [n]",
		Short: "Print or set the schema version recorded in the database",
		Long: `Print the schema version recorded in the database, or record n.

An unset version reads as 0.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := newFormatter(rootOpts, cmd)

			set := len(args) == 1
			var next int
			if set {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid version %q: want a non-negative integer", args[0]))
				}
				next = n
			}

			sess, err := OpenSession(ctx, rootOpts)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open session", err)
			}
			defer sess.Close()

			if set {
				if err := sess.DB.SetVersion(ctx, next); err != nil {
					return formatter.Fail(ExitFailure, "set version failed", err)
				}
			}
			v, err := sess.DB.Version(ctx)
			if err != nil {
				return formatter.Fail(ExitFailure, "read version failed", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]int{"version": v})
			}
			fmt.Fprintln(formatter.Writer, v)
			return nil
		},
	}
}
