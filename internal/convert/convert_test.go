package convert

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetect(t *testing.T) {
	tests := map[string]Kind{
		"invoice.pdf": KindPDF,
		"INVOICE.PDF": KindPDF,
		"scan.JPG":    KindImage,
		"scan.tiff":   KindImage,
		"ledger.xlsx": KindSpreadsheet,
		"notes.txt":   KindText,
		"export.csv":  KindText,
		"archive.zip": KindUnsupported,
		"32495273":    KindPDF,
		"memo.docx":   KindUnsupported,
	}
	for name, want := range tests {
		assert.Equal(t, want, Detect(name), name)
	}
}

func TestSpreadsheetText(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Invoice"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "INV-77"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "Total"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", 1234.5))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "Paid by cheque"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	text, err := SpreadsheetText(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Sheet: Sheet1\nInvoice\tINV-77\nTotal\t1234.5\n\nSheet: Notes\nPaid by cheque", text)

	_, err = SpreadsheetText([]byte("not a workbook"))
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Total: 10", PlainText([]byte("\xef\xbb\xbfTotal: 10")))
	assert.Equal(t, "a�b", PlainText([]byte("a\xffb")))
}

func TestToPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := ToPNG(buf.Bytes())
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
	assert.Equal(t, 3, decoded.Bounds().Dy())

	_, err = ToPNG([]byte("garbage"))
	assert.Error(t, err)
}
