package models

import (
	"strconv"
	"time"
)

// Record is one row of the invoice tracking list. The AI_* and metadata
// columns are written by the batch job; Human_* columns belong to reviewers.
type Record struct {
	// ID is the store's own row identifier (list item id, sheet row, primary key).
	ID string `json:"id,omitempty"`

	Title    string `json:"Title"`
	Filename string `json:"Filename"`

	AIInvoiceNumber string   `json:"AI_InvoiceNumber"`
	AICompanyName   string   `json:"AI_CompanyName"`
	AITotalAmount   *float64 `json:"AI_TotalAmount"`
	AIProcessed     bool     `json:"AI_Processed"`
	AIConfidence    float64  `json:"AI_Confidence"`
	AIInvoiceDate   string   `json:"AI_InvoiceDate"`

	HumanInvoiceNumber string   `json:"Human_InvoiceNumber"`
	HumanInvoiceDate   string   `json:"Human_InvoiceDate"`
	HumanCompanyName   string   `json:"Human_CompanyName"`
	HumanTotalAmount   *float64 `json:"Human_TotalAmount"`
	HumanValidated     bool     `json:"Human_Validated"`
	HumanNotes         string   `json:"Human_Notes"`
	HumanFlagged       bool     `json:"Human_Flagged"`

	GCDocsURL string `json:"GCDocsURL"`
	NodeID    string `json:"NodeID"`
	OCRMethod string `json:"OCR_Method"`
	LLMUsed   string `json:"LLM_Used"`
	TimeTaken string `json:"Time_Taken"`
}

// Columns lists the record fields in their canonical order.
var Columns = []string{
	"Title", "Filename",
	"AI_InvoiceNumber", "AI_CompanyName", "AI_TotalAmount", "AI_Processed", "AI_Confidence", "AI_InvoiceDate",
	"Human_InvoiceNumber", "Human_InvoiceDate", "Human_CompanyName", "Human_TotalAmount",
	"Human_Validated", "Human_Notes", "Human_Flagged",
	"GCDocsURL", "NodeID", "OCR_Method", "LLM_Used", "Time_Taken",
}

// AIUpdate carries the fields the batch job is allowed to write.
type AIUpdate struct {
	InvoiceNumber string
	CompanyName   string
	InvoiceDate   string
	TotalAmount   *float64
	Confidence    float64
	Method        ExtractionMethod
	OCRMethod     string
	LLMUsed       string
	TimeTaken     time.Duration
}

// NewAIUpdate flattens an extraction result into record fields.
// Absent values become empty strings and a nil amount.
func NewAIUpdate(res *ExtractionResult) AIUpdate {
	return AIUpdate{
		InvoiceNumber: StringValue(res.InvoiceNumber),
		CompanyName:   StringValue(res.CompanyName),
		InvoiceDate:   StringValue(res.InvoiceDate),
		TotalAmount:   res.TotalAmount,
		Confidence:    res.Confidence,
		Method:        res.Method,
		OCRMethod:     res.OCRMethod,
		LLMUsed:       res.Model,
		TimeTaken:     res.Elapsed,
	}
}

// Apply copies the update onto the record and marks it processed.
func (u AIUpdate) Apply(r *Record) {
	r.AIInvoiceNumber = u.InvoiceNumber
	r.AICompanyName = u.CompanyName
	r.AIInvoiceDate = u.InvoiceDate
	r.AITotalAmount = u.TotalAmount
	r.AIConfidence = u.Confidence
	r.AIProcessed = true
	r.OCRMethod = OCRMethodLabel(u.OCRMethod, u.Method)
	r.LLMUsed = u.LLMUsed
	r.TimeTaken = FormatTimeTaken(u.TimeTaken)
}

// OCRMethodLabel combines the text source and the slice strategy into the
// OCR_Method column value, e.g. "tesseract/header_footer".
func OCRMethodLabel(ocr string, method ExtractionMethod) string {
	if method == "" {
		return ocr
	}
	if ocr == "" {
		return string(method)
	}
	return ocr + "/" + string(method)
}

// FormatTimeTaken renders a duration the way the Time_Taken column stores it.
func FormatTimeTaken(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}

// NewRecord builds the default record created when a document is first synced.
func NewRecord(nodeID, filename, url string) Record {
	return Record{
		Title:     filename,
		Filename:  filename,
		GCDocsURL: url,
		NodeID:    nodeID,
	}
}

// NodeIDLess orders node identifiers numerically when both parse as
// integers, lexically otherwise.
func NodeIDLess(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return ai < bi
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
