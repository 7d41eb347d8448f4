package errors

import (
	"errors"
	"fmt"
)

// Re-exported so callers need a single errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

const (
	ErrConfig   = "CONFIG"   // invalid configuration, rejected before sampling
	ErrIO       = "IO"       // output directory or file failure
	ErrDatabase = "DATABASE" // optional MySQL sink
	ErrInternal = "INTERNAL"
)

// AppError carries a stable code next to the wrapped cause.
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string { return e.code }
func (e *AppError) Unwrap() error { return e.err }

// Newf returns an AppError without a cause.
func Newf(code, format string, args ...any) *AppError {
	return &AppError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err stays nil.
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, err: err}
}

// CodeOf walks the chain and returns the first AppError code, or ErrInternal.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.code
	}
	return ErrInternal
}
