package ocr

import (
	"context"
	"fmt"
	"strings"

	"invoicepipe/internal/runner"
)

// BackendConfig selects and configures a Recognizer.
type BackendConfig struct {
	// Backend is one of "tesseract", "vision", "documentai".
	Backend       string
	TesseractPath string
	DocumentAI    DocumentAIConfig
}

// NewRecognizer builds the configured backend.
func NewRecognizer(ctx context.Context, cfg BackendConfig, r runner.Runner) (Recognizer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "tesseract":
		return NewTesseractRecognizer(cfg.TesseractPath, r), nil
	case "vision":
		rec, err := NewVisionRecognizer(ctx)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case "documentai":
		rec, err := NewDocumentAIRecognizer(ctx, cfg.DocumentAI)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
