package raster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner emulates pdfinfo and pdftoppm.
type fakeRunner struct {
	pages      int
	infoStderr string
	renders    int
	lastArgs   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch name {
	case "pdfinfo":
		if f.infoStderr != "" {
			return nil, []byte(f.infoStderr), errors.New("exit status 1")
		}
		return []byte("Title: test\nPages:          " + strconv.Itoa(f.pages) + "\nEncrypted: no\n"), nil, nil
	case "pdftoppm":
		f.renders++
		f.lastArgs = args
		prefix := args[len(args)-1]
		return nil, nil, os.WriteFile(prefix+".png", []byte("png-page-"+args[1]), 0o600)
	}
	return nil, nil, errors.New("unexpected command " + name)
}

var samplePDF = []byte("%PDF-1.7\n...")

func TestParseDPI(t *testing.T) {
	tests := []struct {
		in      string
		want    DPI
		wantErr bool
	}{
		{"low", DPILow, false},
		{"normal", DPINormal, false},
		{"", DPINormal, false},
		{"HIGH", DPIHigh, false},
		{"300", DPIHigh, false},
		{"600", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDPI(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderPage(t *testing.T) {
	fr := &fakeRunner{pages: 3}
	r := NewPdftoppmRasterizer(DefaultConfig(), fr)

	page, err := r.RenderPage(context.Background(), samplePDF, 1, DPINormal)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Index)
	assert.Equal(t, DPINormal, page.DPI)
	assert.Equal(t, "png-page-2", string(page.PNG))
	assert.Contains(t, fr.lastArgs, "-singlefile")
	assert.Contains(t, fr.lastArgs, "200")
}

func TestRenderPageErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not a pdf", func(t *testing.T) {
		r := NewPdftoppmRasterizer(DefaultConfig(), &fakeRunner{pages: 1})
		_, err := r.RenderPage(ctx, []byte("hello"), 0, DPINormal)
		var docErr *DocumentError
		require.ErrorAs(t, err, &docErr)
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("out of range", func(t *testing.T) {
		fr := &fakeRunner{pages: 2}
		r := NewPdftoppmRasterizer(DefaultConfig(), fr)
		_, err := r.RenderPage(ctx, samplePDF, 2, DPINormal)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
		assert.Zero(t, fr.renders)
	})

	t.Run("negative page", func(t *testing.T) {
		r := NewPdftoppmRasterizer(DefaultConfig(), &fakeRunner{pages: 2})
		_, err := r.RenderPage(ctx, samplePDF, -1, DPINormal)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})

	t.Run("encrypted", func(t *testing.T) {
		fr := &fakeRunner{infoStderr: "Command Line Error: Incorrect password"}
		r := NewPdftoppmRasterizer(DefaultConfig(), fr)
		_, err := r.RenderPage(ctx, samplePDF, 0, DPINormal)
		assert.ErrorIs(t, err, ErrEncrypted)
	})

	t.Run("corrupted", func(t *testing.T) {
		fr := &fakeRunner{infoStderr: "Syntax Error: Couldn't find trailer dictionary"}
		r := NewPdftoppmRasterizer(DefaultConfig(), fr)
		_, err := r.PageCount(ctx, samplePDF)
		assert.ErrorIs(t, err, ErrUnreadable)
	})
}

func TestRenderPageCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	fr := &fakeRunner{pages: 1}
	r := NewPdftoppmRasterizer(cfg, fr)

	first, err := r.RenderPage(context.Background(), samplePDF, 0, DPILow)
	require.NoError(t, err)
	second, err := r.RenderPage(context.Background(), samplePDF, 0, DPILow)
	require.NoError(t, err)

	assert.Equal(t, first.PNG, second.PNG)
	assert.Equal(t, 1, fr.renders)

	matches, _ := filepath.Glob(filepath.Join(cfg.CacheDir, "*-p0-150.png"))
	assert.Len(t, matches, 1)
}

func TestParsePdfinfo(t *testing.T) {
	n, err := parsePdfinfo([]byte("Producer: x\nPages: 12\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parsePdfinfo([]byte("Producer: x\n"))
	assert.ErrorIs(t, err, ErrUnreadable)
}
