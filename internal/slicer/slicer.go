// Package slicer decides how much of a document's OCR text is sent to the
// model. Short documents go in whole; long ones are cut down to a delimited
// header and footer, dropping the middle where line items usually live.
//
// Lengths are counted in Unicode code points, never bytes, so accented
// French text is cut on character boundaries.
package slicer

import (
	"strings"

	"invoicepipe/pkg/models"
)

// Delimiters framing the header_footer payload.
const (
	BeginHeader = "--- BEGIN HEADER ---"
	EndHeader   = "--- END HEADER ---"
	Skipped     = "... [middle content skipped] ..."
	BeginFooter = "--- BEGIN FOOTER ---"
	EndFooter   = "--- END FOOTER ---"
)

// Config holds the slicing thresholds.
type Config struct {
	// MaxPageChars is the largest text sent verbatim.
	MaxPageChars int
	HeaderChars  int
	FooterChars  int
}

// DefaultConfig returns 1200 header and 800 footer characters, sending
// anything up to their sum verbatim.
func DefaultConfig() Config {
	return Config{
		MaxPageChars: 2000,
		HeaderChars:  1200,
		FooterChars:  800,
	}
}

// Decision is the slicing outcome for one document. It is never persisted.
type Decision struct {
	Strategy models.ExtractionMethod
	// Payload is the exact text handed to the prompt template.
	Payload string
	// Header and Footer are the raw cuts; empty for full_page.
	Header string
	Footer string
}

// Slice is deterministic: equal input and config always produce an equal Decision.
func Slice(raw string, cfg Config) Decision {
	runes := []rune(raw)
	if len(runes) <= cfg.MaxPageChars {
		return Decision{
			Strategy: models.MethodFullPage,
			Payload:  raw,
		}
	}

	h := clamp(cfg.HeaderChars, len(runes))
	f := clamp(cfg.FooterChars, len(runes))
	header := string(runes[:h])
	footer := string(runes[len(runes)-f:])

	return Decision{
		Strategy: models.MethodHeaderFooter,
		Payload:  Frame(header, footer),
		Header:   header,
		Footer:   footer,
	}
}

// Frame joins a header and footer with the delimiter lines.
func Frame(header, footer string) string {
	var b strings.Builder
	b.WriteString(BeginHeader + "\n")
	b.WriteString(header)
	b.WriteString("\n" + EndHeader + "\n\n")
	b.WriteString(Skipped + "\n\n")
	b.WriteString(BeginFooter + "\n")
	b.WriteString(footer)
	b.WriteString("\n" + EndFooter)
	return b.String()
}

// FrameOverhead is the number of characters Frame adds around the cuts.
func FrameOverhead() int {
	return len([]rune(Frame("", "")))
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
