package raster

import (
	"errors"
	"fmt"
)

// Common rasterization errors
var (
	// ErrUnreadable is returned when the document cannot be parsed as a PDF.
	ErrUnreadable = errors.New("unreadable or corrupted PDF document")

	// ErrEncrypted is returned for password protected documents.
	ErrEncrypted = errors.New("PDF document is encrypted")

	// ErrPageOutOfRange is returned when the requested page does not exist.
	ErrPageOutOfRange = errors.New("page index out of range")

	// ErrRenderFailed is returned when the renderer produced no image.
	ErrRenderFailed = errors.New("page rendering failed")
)

// DocumentError reports a document that cannot be rasterized. It is fatal to
// the document being processed, never to the batch.
type DocumentError struct {
	// Op is the operation that failed (e.g., "RenderPage", "PageCount").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("raster: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("raster: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(op string, err error, details string) *DocumentError {
	return &DocumentError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapDocumentError wraps an error as a DocumentError if it isn't already one.
func WrapDocumentError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return err
	}

	return NewDocumentError(op, err, details)
}
