package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrEmptyOutput is returned when the model produced no text at all.
	ErrEmptyOutput = errors.New("model returned empty output")

	// ErrCompletionFailed is returned when the model invocation itself fails or times out.
	ErrCompletionFailed = errors.New("model invocation failed")

	// ErrUnknownProvider is returned for an LLM_PROVIDER value that has no completer.
	ErrUnknownProvider = errors.New("unknown LLM provider")

	// ErrModelNotFound is returned when the selected model file is not in the models directory.
	ErrModelNotFound = errors.New("model not found")

	// ErrMissingAPIKey is returned when a hosted provider has no API key configured.
	ErrMissingAPIKey = errors.New("missing API key")
)

// ExtractionError marks a failed model call for one document. It is distinct
// from a parse failure: the model never produced usable text.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Extract", "Complete").
	Op string

	// Err is the underlying error.
	Err error

	// Model is the model identifier in use, if known.
	Model string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("extraction: %s failed (model: %s): %v", e.Op, e.Model, e.Err)
	}
	return fmt.Sprintf("extraction: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(op string, err error, model string) *ExtractionError {
	return &ExtractionError{Op: op, Err: err, Model: model}
}

// WrapExtractionError wraps err as an ExtractionError if it isn't already one.
func WrapExtractionError(op string, err error, model string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return NewExtractionError(op, err, model)
}
