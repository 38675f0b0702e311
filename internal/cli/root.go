package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to the configuration file
	Metrics bool   // dump prometheus counters after the command

	// Registry collects the entitydb counters. NewRootCommand fills it in.
	Registry *prometheus.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the entitydb CLI.
func NewRootCommand(registry *prometheus.Registry) *cobra.Command {
	opts := &RootOptions{Registry: registry}

	cmd := &cobra.Command{
		Use:   "entitydb",
		Short: "entitydb - typed entity tables over SQL",
		Long: `Inspect and edit entity tables declared in CUE.

Tables are declared in the schemas directory named by the configuration
file and stored in a memory, SQLite or PostgreSQL backend.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			slog.SetDefault(slog.New(NewLogHandler(cmd.ErrOrStderr(), opts.Verbose)))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Metrics || opts.Registry == nil {
				return nil
			}
			return WriteMetrics(cmd.ErrOrStderr(), opts.Registry)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "configuration file (defaults apply when omitted)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print table counters to stderr after the command")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewStreamCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// NewLogHandler returns a colored tint handler on terminals and a plain
// text handler otherwise. verbose lowers the level to Debug.
func NewLogHandler(w io.Writer, verbose bool) slog.Handler {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return tint.NewHandler(colorable.NewColorable(f), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
