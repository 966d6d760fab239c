package reconciliation

import "fmt"

// Field names used in reports, matching the record columns they compare.
const (
	FieldInvoiceNumber = "InvoiceNumber"
	FieldCompanyName   = "CompanyName"
	FieldInvoiceDate   = "InvoiceDate"
	FieldTotalAmount   = "TotalAmount"
)

// Fields lists the compared fields in report order.
var Fields = []string{FieldInvoiceNumber, FieldCompanyName, FieldInvoiceDate, FieldTotalAmount}

// FieldStats is the agreement between AI and human values for one field.
type FieldStats struct {
	Field string `json:"field"`
	// Compared counts validated records with a human value for the field.
	Compared int `json:"compared"`
	Matched  int `json:"matched"`
}

// Accuracy returns Matched/Compared, or 0 when nothing was compared.
func (f FieldStats) Accuracy() float64 {
	if f.Compared == 0 {
		return 0
	}
	return float64(f.Matched) / float64(f.Compared)
}

// Mismatch is one disagreement between the AI and the reviewer.
type Mismatch struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
	AI     string `json:"ai"`
	Human  string `json:"human"`
}

// Report summarizes AI extraction accuracy against human review.
type Report struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Validated int `json:"validated"`
	Flagged   int `json:"flagged"`
	// MeanConfidence is averaged over validated records.
	MeanConfidence float64      `json:"mean_confidence"`
	Fields         []FieldStats `json:"fields"`
	Mismatches     []Mismatch   `json:"mismatches,omitempty"`
}

// Field returns the stats for name.
func (r *Report) Field(name string) FieldStats {
	for _, f := range r.Fields {
		if f.Field == name {
			return f
		}
	}
	return FieldStats{Field: name}
}

// String renders the report as a short table.
func (r *Report) String() string {
	s := fmt.Sprintf("Records: %d, AI processed: %d, human validated: %d, flagged: %d\n",
		r.Total, r.Processed, r.Validated, r.Flagged)
	s += fmt.Sprintf("Mean confidence (validated): %.2f\n", r.MeanConfidence)
	for _, f := range r.Fields {
		s += fmt.Sprintf("  %-14s %3d/%-3d %5.1f%%\n", f.Field, f.Matched, f.Compared, f.Accuracy()*100)
	}
	return s
}
