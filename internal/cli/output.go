package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/entitydb/internal/compiler"
	"github.com/roach88/entitydb/internal/dberr"
)

// Process exit statuses. A command exits 1 when the database answered
// but the answer is a failure, and 2 when it never got that far.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // missing entity, vetoed write, failed scenario
	ExitCommandError = 2 // bad config or flags, unknown table, backend unreachable
)

// Codes reported by the JSON envelope for errors that carry no dberr
// code or validation code.
const (
	ErrCodeGeneric = "E001"
	ErrCodeConfig  = "E002"
	ErrCodeSchemas = "E003" // declarations failed to load or validate
	ErrCodeUsage   = "E004"
	ErrCodeBackend = "E005" // database could not be opened
)

// ExitError carries the process exit status out of a RunE function.
// main reads it back with GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error // may be nil
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status of the first ExitError in err's chain.
// Any other error is an ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode returns the code reported for err: the data-access code
// (e.g. "NOT_FOUND"), the first validation code, or a CLI code.
func ErrorCode(err error) string {
	if code := dberr.CodeOf(err); code != "" {
		return string(code)
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return ErrCodeGeneric
}

// codedError attaches a CLI error code to an error.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, err error) error {
	return &codedError{code: code, err: err}
}

// OutputFormatter writes command results as text or as a JSON envelope,
// depending on Format.
type OutputFormatter struct {
	Format    string // "text" or "json"
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; Writer when nil
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of the envelope. Code is what ErrorCode
// reports for the failure.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success prints data. Text mode prints it with fmt.Println, so commands
// with a richer text rendering print that themselves and call Success
// only in JSON mode.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error prints an error report. Details are shown in text mode only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an
// ExitError with the given exit code.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	_ = f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exitCode, message, err)
}

// VerboseLog prints a diagnostic line in verbose mode. It goes to
// ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
