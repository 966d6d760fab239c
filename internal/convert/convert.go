// Package convert reads documents that do not need the rasterizer.
// Spreadsheets and text files become text directly; images are re-encoded
// as PNG so every OCR backend receives the same format.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/xuri/excelize/v2"
)

// Kind classifies a document by how its text is obtained.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindSpreadsheet Kind = "spreadsheet"
	KindText        Kind = "text"
	KindUnsupported Kind = "unsupported"
)

// OCR_Method values for documents read without OCR.
const (
	MethodNativeXLSX = "native-xlsx"
	MethodNativeText = "native-text"
)

// ErrUnsupported is returned for files with no conversion path.
var ErrUnsupported = errors.New("unsupported document type")

var kindsByExt = map[string]Kind{
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".bmp":  KindImage,
	".gif":  KindImage,
	".xlsx": KindSpreadsheet,
	".xlsm": KindSpreadsheet,
	".txt":  KindText,
	".csv":  KindText,
}

// Detect classifies filename by extension. Names without an extension are
// treated as PDFs, which is what the document source mostly serves.
func Detect(filename string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return KindPDF
	}
	if k, ok := kindsByExt[ext]; ok {
		return k
	}
	return KindUnsupported
}

// SpreadsheetText renders every sheet as tab-separated rows under a
// "Sheet: name" heading.
func SpreadsheetText(data []byte) (string, error) {
	const op = "SpreadsheetText"

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: failed to open workbook: %w", op, err)
	}
	defer f.Close()

	var b strings.Builder
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%s: failed to read sheet %s: %w", op, sheet, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Sheet: " + sheet + "\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// PlainText decodes a text file, dropping a UTF-8 byte order mark and
// replacing invalid sequences.
func PlainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(data)
}

// ToPNG re-encodes any supported image format as PNG.
func ToPNG(data []byte) ([]byte, error) {
	const op = "ToPNG"

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode image: %w", op, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%s: failed to encode PNG: %w", op, err)
	}
	return buf.Bytes(), nil
}
