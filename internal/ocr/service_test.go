package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/raster"
)

type fakeRasterizer struct {
	pages    int
	rendered []int
	err      error
}

func (f *fakeRasterizer) PageCount(context.Context, []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.pages, nil
}

func (f *fakeRasterizer) RenderPage(_ context.Context, _ []byte, page int, dpi raster.DPI) (*raster.Page, error) {
	f.rendered = append(f.rendered, page)
	return &raster.Page{Index: page, DPI: dpi, PNG: []byte{byte(page)}}, nil
}

type fakeRecognizer struct {
	texts map[byte]string
	err   error
}

func (f *fakeRecognizer) Method() string { return "fake" }

func (f *fakeRecognizer) Recognize(_ context.Context, img []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[img[0]], nil
}

func noPreprocess() Config {
	cfg := DefaultConfig()
	cfg.Preprocess = Preprocess{}
	return cfg
}

func TestProcessPDFRespectsMaxPages(t *testing.T) {
	r := &fakeRasterizer{pages: 5}
	rec := &fakeRecognizer{texts: map[byte]string{0: "page one", 1: "page two", 2: "page three"}}
	cfg := noPreprocess()
	cfg.MaxPages = 2

	result, err := NewService(r, rec, cfg).ProcessPDF(context.Background(), []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, r.rendered, "pages beyond the limit must never be rendered")
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, 5, result.TotalPages)
	assert.Equal(t, "page one\n\n--- Page 2 ---\n\npage two", result.Text)
	assert.Equal(t, "fake", result.Method)
}

func TestProcessPDFEmptyTextIsNotAnError(t *testing.T) {
	r := &fakeRasterizer{pages: 1}
	rec := &fakeRecognizer{texts: map[byte]string{}}

	result, err := NewService(r, rec, noPreprocess()).ProcessPDF(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestProcessPDFPropagatesDocumentError(t *testing.T) {
	docErr := raster.NewDocumentError("PageCount", raster.ErrEncrypted, "")
	r := &fakeRasterizer{err: docErr}

	_, err := NewService(r, &fakeRecognizer{}, noPreprocess()).ProcessPDF(context.Background(), []byte("%PDF"))
	var target *raster.DocumentError
	assert.ErrorAs(t, err, &target)
}

func TestRecognizeWrapsBackendError(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("boom")}
	_, err := NewService(&fakeRasterizer{}, rec, noPreprocess()).ProcessImage(context.Background(), []byte{0})

	var ocrErr *OCRError
	require.ErrorAs(t, err, &ocrErr)
	assert.Equal(t, "Recognize", ocrErr.Op)
}

func TestPreprocessApply(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: 80, B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, err := DefaultPreprocess().Apply(buf.Bytes())
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = DefaultPreprocess().Apply([]byte("not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	same, err := Preprocess{}.Apply([]byte("untouched"))
	require.NoError(t, err)
	assert.Equal(t, "untouched", string(same))
}

type scriptedRunner struct {
	args []string
	out  string
}

func (s *scriptedRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	s.args = args
	return []byte(s.out), nil, nil
}

func TestTesseractRecognizer(t *testing.T) {
	r := &scriptedRunner{out: "INVOICE #123\n"}
	text, err := NewTesseractRecognizer("", r).Recognize(context.Background(), []byte("png"), "eng+fra")
	require.NoError(t, err)

	assert.Equal(t, "INVOICE #123\n", text)
	assert.Equal(t, []string{"stdout", "-l", "eng+fra"}, r.args[1:])
}

func TestLanguageHints(t *testing.T) {
	assert.Equal(t, []string{"en", "fr"}, languageHints("eng+fra"))
	assert.Empty(t, languageHints("xyz"))
}
