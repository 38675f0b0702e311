package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// TableInfo describes one registered table.
type TableInfo struct {
	Name         string      `json:"name"`
	Entity       string      `json:"entity"`
	Identity     string      `json:"identity"`
	IdentityKind string      `json:"identity_kind"`
	Fields       []FieldInfo `json:"fields"`
	Streams      []string    `json:"streams,omitempty"`
	Rows         int         `json:"rows"`
}

// FieldInfo describes one scalar field.
type FieldInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tables",
		Short:         "List declared tables with their fields and row counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			sess, err := OpenSession(cmd.Context(), rootOpts)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open session", err)
			}
			defer sess.Close()

			var infos []TableInfo
			for _, t := range sess.DB.Tables() {
				rows, err := t.Count(cmd.Context())
				if err != nil {
					return formatter.Fail(ExitFailure, "count "+t.Name(), err)
				}
				info := TableInfo{
					Name:         t.Name(),
					Entity:       t.Schema().Type(),
					Identity:     t.IdentityField(),
					IdentityKind: t.IdentityKind().String(),
					Streams:      t.Schema().Streams(),
					Rows:         rows,
				}
				for _, f := range t.Schema().Fields() {
					info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Kind: f.Kind.String()})
				}
				infos = append(infos, info)
			}

			if formatter.Format == "json" {
				return formatter.Success(infos)
			}
			for _, info := range infos {
				fmt.Fprintf(formatter.Writer, "%s (%s) %s:%s rows=%d\n",
					info.Name, info.Entity, info.Identity, info.IdentityKind, info.Rows)
				for _, f := range info.Fields {
					fmt.Fprintf(formatter.Writer, "  %s %s\n", f.Name, f.Kind)
				}
				for _, s := range info.Streams {
					fmt.Fprintf(formatter.Writer, "  %s stream\n", s)
				}
			}
			return nil
		},
	}
}
