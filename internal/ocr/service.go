// Package ocr turns rendered pages into plain text.
//
// A Service drives a raster.Rasterizer and a Recognizer backend. Only the
// first MaxPages pages of a document are ever rendered or recognized, and a
// page with no detectable text yields an empty string rather than an error.
//
// Backends:
//   - tesseract: local tesseract binary (TESSERACT_PATH)
//   - vision: Google Cloud Vision document text detection
//   - documentai: Google Document AI OCR processor
//
// Cloud backends read credentials from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application
// default credentials.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/raster"
)

// Recognizer converts a single PNG page image into text.
type Recognizer interface {
	// Recognize returns the text found on the image, or "" when none was found.
	Recognize(ctx context.Context, png []byte, language string) (string, error)

	// Method names the backend for the record's OCR_Method column.
	Method() string
}

// Config controls document level recognition.
type Config struct {
	// Language is a tesseract style language code ("eng", "eng+fra").
	Language string

	// DPI is the resolution pages are rendered at.
	DPI raster.DPI

	// MaxPages caps how many pages are rendered and recognized (0 = all).
	MaxPages int

	Preprocess Preprocess
}

// DefaultConfig returns first-page, normal resolution English recognition.
func DefaultConfig() Config {
	return Config{
		Language:   "eng",
		DPI:        raster.DPINormal,
		MaxPages:   1,
		Preprocess: DefaultPreprocess(),
	}
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the recognized text of all processed pages in reading order.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// TotalPages is the document's page count, which may exceed PageCount.
	TotalPages int `json:"total_pages"`

	// Method is the recognizer backend used.
	Method string `json:"method"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Service recognizes whole documents.
type Service struct {
	rasterizer raster.Rasterizer
	recognizer Recognizer
	cfg        Config
	log        zerolog.Logger
}

// NewService wires a rasterizer and a recognizer backend.
func NewService(r raster.Rasterizer, rec Recognizer, cfg Config) *Service {
	if cfg.DPI == 0 {
		cfg.DPI = raster.DPINormal
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Service{
		rasterizer: r,
		recognizer: rec,
		cfg:        cfg,
		log:        logger.WithComponent("ocr"),
	}
}

// Method returns the backend name.
func (s *Service) Method() string {
	return s.recognizer.Method()
}

// Recognize preprocesses one page image and runs the backend on it.
func (s *Service) Recognize(ctx context.Context, png []byte, language string, pre Preprocess) (string, error) {
	const op = "Recognize"

	img, err := pre.Apply(png)
	if err != nil {
		return "", WrapOCRError(op, err, "preprocessing failed")
	}

	text, err := s.recognizer.Recognize(ctx, img, language)
	if err != nil {
		return "", WrapOCRError(op, err, s.recognizer.Method())
	}
	return Normalize(text), nil
}

// ProcessPDF renders and recognizes up to MaxPages pages of a PDF.
// Rasterizer failures are returned unchanged so callers can tell a broken
// document apart from a failing OCR backend.
func (s *Service) ProcessPDF(ctx context.Context, pdf []byte) (*OCRResult, error) {
	start := time.Now()

	total, err := s.rasterizer.PageCount(ctx, pdf)
	if err != nil {
		return nil, err
	}

	pages := total
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		pages = s.cfg.MaxPages
	}

	var texts []string
	for i := 0; i < pages; i++ {
		page, err := s.rasterizer.RenderPage(ctx, pdf, i, s.cfg.DPI)
		if err != nil {
			return nil, err
		}

		text, err := s.Recognize(ctx, page.PNG, s.cfg.Language, s.cfg.Preprocess)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)

		s.log.Debug().
			Int("page", i).
			Int("chars", len(text)).
			Msg("Recognized page")
	}

	result := s.finish(joinPages(texts), pages, start)
	result.TotalPages = total

	s.log.Info().
		Int("pages", pages).
		Int("total_pages", total).
		Int("chars", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR completed")

	return result, nil
}

// ProcessImage recognizes a single image document without rasterizing.
func (s *Service) ProcessImage(ctx context.Context, png []byte) (*OCRResult, error) {
	start := time.Now()

	text, err := s.Recognize(ctx, png, s.cfg.Language, s.cfg.Preprocess)
	if err != nil {
		return nil, err
	}

	result := s.finish(text, 1, start)
	result.TotalPages = 1
	return result, nil
}

func (s *Service) finish(text string, pages int, start time.Time) *OCRResult {
	now := time.Now()
	return &OCRResult{
		Text:               text,
		PageCount:          pages,
		Method:             s.recognizer.Method(),
		ProcessedAt:        now,
		ProcessingDuration: now.Sub(start),
	}
}

// joinPages separates non-empty page texts with a page marker.
func joinPages(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", i+1))
		}
		b.WriteString(t)
	}
	return b.String()
}
