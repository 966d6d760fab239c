// Package raster renders PDF pages to PNG bitmaps for OCR.
//
// Rendering shells out to poppler-utils: pdfinfo reads page count and
// encryption state, pdftoppm renders one page at a time. Only the pages a
// caller asks for are ever rendered.
//
// Environment Variables:
//   - PDFTOPPM_PATH: pdftoppm binary (default "pdftoppm")
//   - PDFINFO_PATH: pdfinfo binary (default "pdfinfo")
//   - RENDER_CACHE_DIR: optional directory for rendered pages, keyed by
//     document hash, page and resolution
package raster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DPI is the render resolution. Higher values help OCR on small print at
// the cost of latency.
type DPI int

const (
	DPILow    DPI = 150
	DPINormal DPI = 200
	DPIHigh   DPI = 300
)

// ParseDPI accepts "low", "normal", "high" or one of their numeric values.
func ParseDPI(s string) (DPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "preview", "150":
		return DPILow, nil
	case "", "normal", "200":
		return DPINormal, nil
	case "high", "300":
		return DPIHigh, nil
	}
	return 0, fmt.Errorf("unsupported dpi %q: use low, normal or high", s)
}

// String implements fmt.Stringer.
func (d DPI) String() string {
	return strconv.Itoa(int(d))
}

// Page is one rendered page.
type Page struct {
	// Index is the zero-based page number.
	Index int
	DPI   DPI
	PNG   []byte
}

// Rasterizer renders PDF pages.
type Rasterizer interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, pdf []byte) (int, error)

	// RenderPage renders the zero-based page at the given resolution.
	// Unreadable, encrypted or out-of-range input yields a *DocumentError.
	RenderPage(ctx context.Context, pdf []byte, page int, dpi DPI) (*Page, error)
}

// Config configures the poppler based rasterizer.
type Config struct {
	PdftoppmPath string
	PdfinfoPath  string
	CacheDir     string
}

// DefaultConfig returns binaries resolved from PATH and no cache.
func DefaultConfig() Config {
	return Config{
		PdftoppmPath: "pdftoppm",
		PdfinfoPath:  "pdfinfo",
	}
}
