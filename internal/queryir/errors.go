package queryir

import (
	"errors"
	"fmt"
)

// ErrorKind classifies compilation failures. None of them are retryable:
// each indicates a caller mistake, not a transient condition.
type ErrorKind string

const (
	// KindValidation marks malformed or unsupported options, such as an
	// unsupported collation or an invalid group-by expression.
	KindValidation ErrorKind = "VALIDATION"

	// KindUnimplemented marks recognized input shapes that the compiler
	// deliberately refuses, such as pipeline lookups.
	KindUnimplemented ErrorKind = "UNIMPLEMENTED"

	// KindCompile marks unrecognized operators and malformed selectors.
	KindCompile ErrorKind = "COMPILE"
)

// Error is the single error type raised while parsing or compiling a query.
//
// Error() returns Message unchanged so callers can match on the exact text
// (for example `Unsupported collation type: {"locale":"simple","strength":2}`).
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validationf creates a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unimplementedf creates a KindUnimplemented error.
func Unimplementedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnimplemented, Message: fmt.Sprintf(format, args...)}
}

// Compilef creates a KindCompile error.
func Compilef(format string, args ...any) *Error {
	return &Error{Kind: KindCompile, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a query error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// IsValidationError checks if err is a KindValidation error.
func IsValidationError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindValidation
}

// IsUnimplementedError checks if err is a KindUnimplemented error.
func IsUnimplementedError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindUnimplemented
}

// IsCompileError checks if err is a KindCompile error.
func IsCompileError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindCompile
}
