package invoice

import (
	"errors"
	"fmt"
)

// Common parse errors
var (
	// ErrNoJSON is returned when the model output contains no JSON object at all.
	ErrNoJSON = errors.New("no JSON object in model output")
)

// ParseError is the one hard per-document parse failure: the model answered,
// but nothing in the answer looks like an object.
type ParseError struct {
	// Op is the operation that failed.
	Op string

	// Err is the underlying error.
	Err error

	// Output is the offending model output, truncated for logging.
	Output string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("invoice: %s failed: %v (output: %q)", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ParseError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewParseError creates a new ParseError, keeping at most 120 characters of output.
func NewParseError(op string, err error, output string) *ParseError {
	r := []rune(output)
	if len(r) > 120 {
		output = string(r[:120]) + "..."
	}
	return &ParseError{
		Op:     op,
		Err:    err,
		Output: output,
	}
}

// ValidationError describes a field value that was present but unusable.
// It is never fatal; the parser logs it and maps the field to absent.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
