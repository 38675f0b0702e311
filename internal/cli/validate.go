package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entitydb/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Tables int                        `json:"tables"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schemas-dir]",
		Short: "Validate table declarations without opening a database",
		Long: `Compile the CUE table declarations and check them against the
registration rules of a database: valid names, no identity collisions,
no duplicate tables or entity types.

The schemas directory defaults to schemas.dir of the configuration.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := LoadConfig(opts)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to load config", err)
		}
		dir = cfg.Schemas.Dir
	}
	formatter.VerboseLog("Validating declarations in %s", dir)

	decls, err := compiler.LoadDir(dir)
	if err != nil {
		_ = formatter.Error(ErrCodeSchemas, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load declarations", err)
	}
	if verrs := compiler.Validate(decls); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Tables: len(decls)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d table declaration(s) valid\n", len(decls))
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	exitErr := WrapExitError(ExitFailure,
		fmt.Sprintf("validation failed with %d error(s)", len(errs)), errors.Join(joined...))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s.%s: %s\n\n", e.Code, e.Table, e.Field, e.Message)
	}
	return exitErr
}
