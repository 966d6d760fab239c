package raster

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/runner"
)

// PdftoppmRasterizer implements Rasterizer with poppler-utils.
type PdftoppmRasterizer struct {
	cfg    Config
	runner runner.Runner
	log    zerolog.Logger
}

// NewPdftoppmRasterizer creates a rasterizer. A nil runner uses os/exec.
func NewPdftoppmRasterizer(cfg Config, r runner.Runner) *PdftoppmRasterizer {
	if r == nil {
		r = runner.Exec{}
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.PdfinfoPath == "" {
		cfg.PdfinfoPath = "pdfinfo"
	}
	return &PdftoppmRasterizer{
		cfg:    cfg,
		runner: r,
		log:    logger.WithComponent("raster"),
	}
}

// PageCount implements Rasterizer.
func (p *PdftoppmRasterizer) PageCount(ctx context.Context, pdf []byte) (int, error) {
	const op = "PageCount"

	if err := checkHeader(pdf); err != nil {
		return 0, NewDocumentError(op, err, "missing PDF header")
	}

	var pages int
	err := withTempPDF(pdf, func(path string) error {
		n, err := p.pageCount(ctx, path)
		pages = n
		return err
	})
	if err != nil {
		return 0, WrapDocumentError(op, err, "")
	}
	return pages, nil
}

// RenderPage implements Rasterizer.
func (p *PdftoppmRasterizer) RenderPage(ctx context.Context, pdf []byte, page int, dpi DPI) (*Page, error) {
	const op = "RenderPage"

	if err := checkHeader(pdf); err != nil {
		return nil, NewDocumentError(op, err, "missing PDF header")
	}
	if page < 0 {
		return nil, NewDocumentError(op, ErrPageOutOfRange, fmt.Sprintf("page %d", page))
	}

	cachePath := p.cachePath(pdf, page, dpi)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			p.log.Debug().Str("cache", cachePath).Msg("Using cached page render")
			return &Page{Index: page, DPI: dpi, PNG: data}, nil
		}
	}

	var png []byte
	err := withTempPDF(pdf, func(path string) error {
		count, err := p.pageCount(ctx, path)
		if err != nil {
			return err
		}
		if page >= count {
			return NewDocumentError(op, ErrPageOutOfRange, fmt.Sprintf("page %d of %d", page, count))
		}

		prefix := filepath.Join(filepath.Dir(path), "page")
		n := strconv.Itoa(page + 1)
		_, errb, err := p.runner.Run(ctx, p.cfg.PdftoppmPath,
			"-f", n, "-l", n,
			"-r", dpi.String(),
			"-png", "-singlefile",
			path, prefix)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewDocumentError(op, ErrRenderFailed, runner.Truncate(strings.TrimSpace(string(errb)), 512))
		}

		png, err = os.ReadFile(prefix + ".png")
		if err != nil {
			return NewDocumentError(op, ErrRenderFailed, "pdftoppm produced no image")
		}
		return nil
	})
	if err != nil {
		return nil, WrapDocumentError(op, err, "")
	}

	if cachePath != "" {
		p.storeCache(cachePath, png)
	}

	p.log.Debug().
		Int("page", page).
		Int("dpi", int(dpi)).
		Int("bytes", len(png)).
		Msg("Rendered page")

	return &Page{Index: page, DPI: dpi, PNG: png}, nil
}

// pageCount runs pdfinfo on a file already on disk.
func (p *PdftoppmRasterizer) pageCount(ctx context.Context, path string) (int, error) {
	out, errb, err := p.runner.Run(ctx, p.cfg.PdfinfoPath, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		msg := strings.ToLower(string(errb))
		if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
			return 0, ErrEncrypted
		}
		return 0, fmt.Errorf("%w: %s", ErrUnreadable, runner.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return parsePdfinfo(out)
}

// parsePdfinfo extracts the page count from pdfinfo output. Documents that
// pdfinfo could open but reports as copy/print protected are still readable;
// only a missing page count is treated as unreadable.
func parsePdfinfo(out []byte) (int, error) {
	pages := -1
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Pages":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return 0, fmt.Errorf("%w: bad page count %q", ErrUnreadable, value)
			}
			pages = n
		}
	}
	if pages < 0 {
		return 0, fmt.Errorf("%w: pdfinfo reported no page count", ErrUnreadable)
	}
	return pages, nil
}

func (p *PdftoppmRasterizer) cachePath(pdf []byte, page int, dpi DPI) string {
	if p.cfg.CacheDir == "" {
		return ""
	}
	sum := sha256.Sum256(pdf)
	return filepath.Join(p.cfg.CacheDir, fmt.Sprintf("%s-p%d-%d.png", hex.EncodeToString(sum[:]), page, dpi))
}

func (p *PdftoppmRasterizer) storeCache(path string, png []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.log.Warn().Err(err).Str("cache", path).Msg("Failed to create render cache directory")
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		p.log.Warn().Err(err).Str("cache", path).Msg("Failed to write render cache")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		p.log.Warn().Err(err).Str("cache", path).Msg("Failed to persist render cache")
	}
}

func checkHeader(pdf []byte) error {
	if len(pdf) < 4 || string(pdf[:4]) != "%PDF" {
		return ErrUnreadable
	}
	return nil
}

// withTempPDF writes the document to a private temp dir for the duration of fn.
func withTempPDF(pdf []byte, fn func(path string) error) error {
	dir, err := os.MkdirTemp("", "invoicepipe-raster-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		return err
	}
	return fn(path)
}
