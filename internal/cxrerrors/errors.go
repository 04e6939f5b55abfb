// Package cxrerrors defines the query-facing error taxonomy: one typed
// error per category, wrapping the underlying cause.
package cxrerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a query-facing error.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	ResolutionFailure Kind = "resolution_failure"
	NotFound          Kind = "not_found"
	ParseFailure      Kind = "parse_failure"
	Cancelled         Kind = "cancelled"
	Internal          Kind = "internal"
)

// QueryError is returned by Query facade operations. Op names the
// operation (e.g. "add", "lookupline") so a caller can log context
// without re-deriving it from the message string.
type QueryError struct {
	Kind Kind
	Op   string
	Err  error
}

// New constructs a QueryError with no wrapped cause.
func New(kind Kind, op, msg string) *QueryError {
	return &QueryError{Kind: kind, Op: op, Err: fmt.Errorf("%s", msg)}
}

// Wrap constructs a QueryError around an existing error.
func Wrap(kind Kind, op string, err error) *QueryError {
	return &QueryError{Kind: kind, Op: op, Err: err}
}

func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports whether err (or something it wraps) is a QueryError of kind.
func Is(err error, kind Kind) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Kind == kind
}
