package engine

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed run input or terminal output. It is
// fatal: the run-level retry loop never retries it.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err (or anything it wraps) is a
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExecutionError is the single typed error surfaced to the caller after a
// run fails permanently.
type ExecutionError struct {
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("graph execution failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
