package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/extraction"
	"invoicepipe/internal/invoice"
	"invoicepipe/internal/ocr"
	"invoicepipe/internal/raster"
	"invoicepipe/internal/recordstore"
	"invoicepipe/internal/slicer"
	"invoicepipe/pkg/models"
)

type fakeOCR struct {
	text string
	err  error
	pdfs int
}

func (f *fakeOCR) ProcessPDF(context.Context, []byte) (*ocr.OCRResult, error) {
	f.pdfs++
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.OCRResult{Text: f.text, Method: "tesseract", PageCount: 1}, nil
}

func (f *fakeOCR) ProcessImage(context.Context, []byte) (*ocr.OCRResult, error) {
	return nil, errors.New("not used")
}

type fakeExtractor struct {
	out     string
	err     error
	payload string
}

func (f *fakeExtractor) Extract(_ context.Context, d slicer.Decision) (string, error) {
	f.payload = d.Payload
	return f.out, f.err
}

func (f *fakeExtractor) Model() string { return "mistral-7b.gguf" }

type memSource map[string][]byte

func (m memSource) ListFolder(context.Context, string) ([]models.Node, error) { return nil, nil }

func (m memSource) Download(_ context.Context, id string) ([]byte, error) {
	data, ok := m[id]
	if !ok {
		return nil, &docsource.DownloadError{NodeID: id, Err: docsource.ErrNodeNotFound}
	}
	return data, nil
}

const scenarioText = "INVOICE #123\nAcme Co\nTotal: $1,234.56\nDate: Oct 10, 2023"

func TestProcessScenario(t *testing.T) {
	o := &fakeOCR{text: scenarioText}
	ex := &fakeExtractor{out: `{"invoice_number":"123","company_name":"Acme Co","invoice_date":"2023-10-10","total_amount":1234.56}`}
	p := NewProcessor(memSource{"101": []byte("%PDF-1.4")}, o, slicer.DefaultConfig(), nil)

	res, err := p.Process(context.Background(), models.NewRecord("101", "inv.pdf", ""), ex)
	require.NoError(t, err)

	assert.Equal(t, scenarioText, ex.payload, "short text goes to the model verbatim")
	assert.Equal(t, models.MethodFullPage, res.Method)
	assert.Equal(t, "mistral-7b.gguf", res.Model)
	assert.Equal(t, "tesseract", res.OCRMethod)
	assert.Equal(t, "123", *res.InvoiceNumber)
	assert.InDelta(t, 1234.56, *res.TotalAmount, 0.001)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)
}

func TestProcessLongTextUsesHeaderFooter(t *testing.T) {
	long := "INVOICE #9\n" + strings.Repeat("line item\n", 500) + "Total: 42.00"
	ex := &fakeExtractor{out: `{"invoice_number":"9","company_name":null,"invoice_date":null,"total_amount":"42.00"}`}
	p := NewProcessor(nil, &fakeOCR{text: long}, slicer.DefaultConfig(), nil)

	res, err := p.ProcessBytes(context.Background(), "scan.pdf", []byte("%PDF"), ex)
	require.NoError(t, err)
	assert.Equal(t, models.MethodHeaderFooter, res.Method)
	assert.Contains(t, ex.payload, slicer.Skipped)
}

func TestProcessNativeText(t *testing.T) {
	o := &fakeOCR{}
	ex := &fakeExtractor{out: `{"invoice_number":"7"}`}
	p := NewProcessor(nil, o, slicer.DefaultConfig(), nil)

	res, err := p.ProcessBytes(context.Background(), "note.txt", []byte("\xef\xbb\xbfInvoice 7"), ex)
	require.NoError(t, err)
	assert.Equal(t, 0, o.pdfs, "text files skip OCR")
	assert.Equal(t, "Invoice 7", ex.payload)
	assert.Equal(t, "native-text", res.OCRMethod)
}

func TestProcessErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		nodeID   string
		ocr      *fakeOCR
		ex       *fakeExtractor
		want     string
	}{
		{
			name:   "download",
			nodeID: "404",
			ocr:    &fakeOCR{},
			ex:     &fakeExtractor{},
			want:   "DownloadError",
		},
		{
			name: "document",
			ocr:  &fakeOCR{err: raster.NewDocumentError("PageCount", raster.ErrEncrypted, "")},
			ex:   &fakeExtractor{},
			want: "DocumentError",
		},
		{
			name:     "unsupported",
			filename: "archive.zip",
			ocr:      &fakeOCR{},
			ex:       &fakeExtractor{},
			want:     "DocumentError",
		},
		{
			name: "extraction",
			ocr:  &fakeOCR{text: "x"},
			ex:   &fakeExtractor{err: extraction.NewExtractionError("Extract", extraction.ErrEmptyOutput, "m")},
			want: "ExtractionError",
		},
		{
			name: "parse",
			ocr:  &fakeOCR{text: "x"},
			ex:   &fakeExtractor{out: "I cannot extract this."},
			want: "ParseError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodeID := tt.nodeID
			if nodeID == "" {
				nodeID = "1"
			}
			filename := tt.filename
			if filename == "" {
				filename = "doc.pdf"
			}
			p := NewProcessor(memSource{"1": []byte("%PDF")}, tt.ocr, slicer.DefaultConfig(), nil)

			_, err := p.Process(context.Background(), models.NewRecord(nodeID, filename, ""), tt.ex)
			require.Error(t, err)
			assert.Equal(t, tt.want, Kind(err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Empty(t, Kind(nil))
	assert.Equal(t, "RecordStoreError", Kind(fmt.Errorf("write: %w",
		recordstore.NewRecordStoreError("WriteAI", errors.New("503"), "sharepoint"))))
	assert.Equal(t, "ParseError", Kind(invoice.NewParseError("Parse", invoice.ErrNoJSON, "")))
	assert.Equal(t, "Interrupted", Kind(context.Canceled))
	assert.Equal(t, "Error", Kind(errors.New("boom")))
}
