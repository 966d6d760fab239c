package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"invoicepipe/internal/runner"
)

// TesseractRecognizer runs the local tesseract binary.
type TesseractRecognizer struct {
	path   string
	runner runner.Runner
}

// NewTesseractRecognizer creates a tesseract backend. A nil runner uses os/exec.
func NewTesseractRecognizer(path string, r runner.Runner) *TesseractRecognizer {
	if path == "" {
		path = "tesseract"
	}
	if r == nil {
		r = runner.Exec{}
	}
	return &TesseractRecognizer{path: path, runner: r}
}

// Method implements Recognizer.
func (t *TesseractRecognizer) Method() string {
	return "tesseract"
}

// Recognize implements Recognizer.
func (t *TesseractRecognizer) Recognize(ctx context.Context, png []byte, language string) (string, error) {
	const op = "TesseractRecognize"

	dir, err := os.MkdirTemp("", "invoicepipe-ocr-*")
	if err != nil {
		return "", WrapOCRError(op, err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "page.png")
	if err := os.WriteFile(in, png, 0o600); err != nil {
		return "", WrapOCRError(op, err, "failed to write page image")
	}

	args := []string{in, "stdout"}
	if language != "" {
		args = append(args, "-l", language)
	}
	out, errb, err := t.runner.Run(ctx, t.path, args...)
	if err != nil {
		return "", NewOCRError(op, ErrOCRFailed, fmt.Sprintf("tesseract: %v: %s", err, runner.Truncate(strings.TrimSpace(string(errb)), 512)))
	}
	return string(out), nil
}
