package models

import (
	"strconv"
	"time"
)

// ExtractionMethod names the slice strategy used to build the model payload.
type ExtractionMethod string

const (
	MethodFullPage     ExtractionMethod = "full_page"
	MethodHeaderFooter ExtractionMethod = "header_footer"
)

// ExtractionResult is the outcome of one pipeline run over one document.
// Business fields are optional: nil means the model did not provide a usable value.
type ExtractionResult struct {
	InvoiceNumber *string `json:"invoice_number"`
	CompanyName   *string `json:"company_name"`
	// InvoiceDate is YYYY-MM-DD when it could be normalized, otherwise the raw model text
	InvoiceDate *string  `json:"invoice_date"`
	TotalAmount *float64 `json:"total_amount"`

	Confidence float64          `json:"confidence"`
	Method     ExtractionMethod `json:"extraction_method"`
	Model      string           `json:"model"`
	OCRMethod  string           `json:"ocr_method"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// PresentKeys returns how many of the four business fields carry a non-empty value.
func (r *ExtractionResult) PresentKeys() int {
	n := 0
	for _, s := range []*string{r.InvoiceNumber, r.CompanyName, r.InvoiceDate} {
		if s != nil && *s != "" {
			n++
		}
	}
	if r.TotalAmount != nil {
		n++
	}
	return n
}

// StringValue dereferences an optional string, mapping nil to "".
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatAmount renders an optional amount, mapping nil to "".
func FormatAmount(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
