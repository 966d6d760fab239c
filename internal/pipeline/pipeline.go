// Package pipeline runs one document through text acquisition, slicing,
// extraction and parsing. It owns no state between documents; the batch job
// controller calls it once per record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"invoicepipe/internal/convert"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/extraction"
	"invoicepipe/internal/invoice"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/ocr"
	"invoicepipe/internal/raster"
	"invoicepipe/internal/recordstore"
	"invoicepipe/internal/slicer"
	"invoicepipe/pkg/models"
)

// OCR recognizes PDFs and single images. *ocr.Service implements it.
type OCR interface {
	ProcessPDF(ctx context.Context, pdf []byte) (*ocr.OCRResult, error)
	ProcessImage(ctx context.Context, png []byte) (*ocr.OCRResult, error)
}

// Extractor returns raw model output for a slice decision. *extraction.Engine implements it.
type Extractor interface {
	Extract(ctx context.Context, d slicer.Decision) (string, error)
	Model() string
}

// Text is the text of one document and how it was obtained.
type Text struct {
	Content string
	// Method is the OCR backend name, or a native-* method for documents read directly.
	Method string
	Pages  int
}

// Processor runs the per-document pipeline.
type Processor struct {
	source docsource.Source
	ocr    OCR
	slice  slicer.Config
	parser *invoice.Parser
	log    zerolog.Logger
}

// NewProcessor wires the pipeline stages. source may be nil when only
// ProcessBytes is used.
func NewProcessor(source docsource.Source, o OCR, slice slicer.Config, parser *invoice.Parser) *Processor {
	if parser == nil {
		parser = invoice.NewParser(invoice.DefaultWeights(), nil)
	}
	return &Processor{
		source: source,
		ocr:    o,
		slice:  slice,
		parser: parser,
		log:    logger.WithComponent("pipeline"),
	}
}

// Process downloads the record's document and extracts its invoice fields.
func (p *Processor) Process(ctx context.Context, rec models.Record, ex Extractor) (*models.ExtractionResult, error) {
	const op = "Process"

	if p.source == nil {
		return nil, fmt.Errorf("%s: no document source configured", op)
	}

	start := time.Now()
	data, err := p.source.Download(ctx, rec.NodeID)
	if err != nil {
		return nil, err
	}

	res, err := p.run(ctx, rec.Filename, data, ex)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// ProcessBytes extracts invoice fields from a document already in memory.
func (p *Processor) ProcessBytes(ctx context.Context, filename string, data []byte, ex Extractor) (*models.ExtractionResult, error) {
	start := time.Now()
	res, err := p.run(ctx, filename, data, ex)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (p *Processor) run(ctx context.Context, filename string, data []byte, ex Extractor) (*models.ExtractionResult, error) {
	text, err := p.ReadText(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	d := slicer.Slice(text.Content, p.slice)
	if text.Content == "" {
		p.log.Warn().Str("file", filename).Msg("No text recognized, extracting from empty input")
	}

	out, err := ex.Extract(ctx, d)
	if err != nil {
		return nil, err
	}

	res, err := p.parser.Parse(out)
	if err != nil {
		return nil, err
	}
	res.Method = d.Strategy
	res.Model = ex.Model()
	res.OCRMethod = text.Method

	p.log.Debug().
		Str("file", filename).
		Str("strategy", string(d.Strategy)).
		Str("ocr_method", text.Method).
		Int("chars", len([]rune(text.Content))).
		Float64("confidence", res.Confidence).
		Msg("Document extracted")

	return res, nil
}

// ReadText obtains a document's text according to its file type.
func (p *Processor) ReadText(ctx context.Context, filename string, data []byte) (Text, error) {
	const op = "ReadText"

	switch convert.Detect(filename) {
	case convert.KindPDF:
		r, err := p.ocr.ProcessPDF(ctx, data)
		if err != nil {
			return Text{}, err
		}
		return Text{Content: r.Text, Method: r.Method, Pages: r.PageCount}, nil

	case convert.KindImage:
		png, err := convert.ToPNG(data)
		if err != nil {
			return Text{}, raster.NewDocumentError(op, raster.ErrUnreadable, err.Error())
		}
		r, err := p.ocr.ProcessImage(ctx, png)
		if err != nil {
			return Text{}, err
		}
		return Text{Content: r.Text, Method: r.Method, Pages: 1}, nil

	case convert.KindSpreadsheet:
		s, err := convert.SpreadsheetText(data)
		if err != nil {
			return Text{}, raster.NewDocumentError(op, raster.ErrUnreadable, err.Error())
		}
		return Text{Content: s, Method: convert.MethodNativeXLSX, Pages: 1}, nil

	case convert.KindText:
		return Text{Content: convert.PlainText(data), Method: convert.MethodNativeText, Pages: 1}, nil
	}

	return Text{}, raster.NewDocumentError(op, convert.ErrUnsupported, filename)
}

// Kind names the failure class of err for console lines.
func Kind(err error) string {
	var (
		docErr   *raster.DocumentError
		extErr   *extraction.ExtractionError
		parseErr *invoice.ParseError
		storeErr *recordstore.RecordStoreError
		dlErr    *docsource.DownloadError
		ocrErr   *ocr.OCRError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &docErr):
		return "DocumentError"
	case errors.As(err, &extErr):
		return "ExtractionError"
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &storeErr):
		return "RecordStoreError"
	case errors.As(err, &dlErr):
		return "DownloadError"
	case errors.As(err, &ocrErr):
		return "OCRError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Interrupted"
	}
	return "Error"
}
