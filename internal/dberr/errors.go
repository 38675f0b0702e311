// Package dberr defines the error taxonomy shared by tables, clauses,
// backends and stream fields.
//
// Errors carry a Code identifying their kind. Callers branch on the kind
// with the IsXxx helpers, which see through wrapping.
package dberr

import (
	"errors"
	"fmt"
)

// Code categorizes data-access errors.
type Code string

const (
	// CodeSchema covers unknown fields, duplicate table or entity type
	// registration, and clauses that are invalid for the bound schema.
	CodeSchema Code = "SCHEMA"

	// CodeDuplicateKey indicates an insert with an identity already present.
	CodeDuplicateKey Code = "DUPLICATE_KEY"

	// CodeNotFound indicates an update against a missing identity.
	CodeNotFound Code = "NOT_FOUND"

	// CodeTypeMismatch indicates an entity whose declared type differs from
	// the table it was handed to.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// CodeTriggerVetoed indicates a before-trigger aborted the operation.
	CodeTriggerVetoed Code = "TRIGGER_VETOED"

	// CodeStreamIO indicates a failure to externalize or reopen a stream field.
	CodeStreamIO Code = "STREAM_IO"
)

// Error is a data-access error with structured context.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Table names the affected table, if any.
	Table string

	// Field names the affected field, if any.
	Field string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Table != "" && e.Field != "":
		msg += fmt.Sprintf(" (table=%s, field=%s)", e.Table, e.Field)
	case e.Table != "":
		msg += fmt.Sprintf(" (table=%s)", e.Table)
	case e.Field != "":
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// InTable returns a copy of e annotated with a table name.
func (e *Error) InTable(table string) *Error {
	c := *e
	c.Table = table
	return &c
}

// OnField returns a copy of e annotated with a field name.
func (e *Error) OnField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsSchema returns true if err is a schema error.
func IsSchema(err error) bool { return CodeOf(err) == CodeSchema }

// IsDuplicateKey returns true if err is a duplicate-key error.
func IsDuplicateKey(err error) bool { return CodeOf(err) == CodeDuplicateKey }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsTypeMismatch returns true if err is a type-mismatch error.
func IsTypeMismatch(err error) bool { return CodeOf(err) == CodeTypeMismatch }

// IsTriggerVetoed returns true if err is a trigger veto.
func IsTriggerVetoed(err error) bool { return CodeOf(err) == CodeTriggerVetoed }

// IsStreamIO returns true if err is a stream I/O error.
func IsStreamIO(err error) bool { return CodeOf(err) == CodeStreamIO }
