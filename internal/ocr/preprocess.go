package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Preprocess holds optional image enhancement applied before recognition.
type Preprocess struct {
	// Grayscale drops color information first.
	Grayscale bool

	// Contrast is a percentage in [-100, 100]; 0 leaves contrast unchanged.
	Contrast float64

	// Sharpen is the gaussian sigma of the sharpening pass; 0 disables it.
	Sharpen float64
}

// DefaultPreprocess matches what works well for scanned invoices.
func DefaultPreprocess() Preprocess {
	return Preprocess{
		Grayscale: true,
		Contrast:  20,
		Sharpen:   1.0,
	}
}

// Enabled reports whether any enhancement is configured.
func (p Preprocess) Enabled() bool {
	return p.Grayscale || p.Contrast != 0 || p.Sharpen > 0
}

// Apply returns the enhanced image as PNG. With nothing enabled the input
// is returned untouched.
func (p Preprocess) Apply(png []byte) ([]byte, error) {
	if !p.Enabled() {
		return png, nil
	}

	src, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var img image.Image = src
	if p.Grayscale {
		img = imaging.Grayscale(img)
	}
	if p.Contrast != 0 {
		img = imaging.AdjustContrast(img, clamp(p.Contrast, -100, 100))
	}
	if p.Sharpen > 0 {
		img = imaging.Sharpen(img, p.Sharpen)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
