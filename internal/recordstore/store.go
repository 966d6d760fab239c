// Package recordstore persists one record per source document. The batch job
// reads unprocessed records and writes AI_* fields back; the review UI owns
// the Human_* fields, which no code in this module ever writes.
//
// Backends (RECORD_STORE):
//   - sqlite: a local database file (SQLITE_PATH)
//   - sheets: a Google Sheets worksheet (GOOGLE_SHEET_URL, GOOGLE_SHEET_WORKSHEET)
//   - sharepoint: a SharePoint list through Microsoft Graph (SHAREPOINT_*)
//   - memory: process-local, for tests and dry runs
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"invoicepipe/pkg/models"
)

// Store is the record store contract.
type Store interface {
	// List returns every record.
	List(ctx context.Context) ([]models.Record, error)

	// ListUnprocessed returns records with AI_Processed=false, lowest NodeID
	// first. A limit <= 0 returns all of them.
	ListUnprocessed(ctx context.Context, limit int) ([]models.Record, error)

	// Create inserts a record and returns it with its store ID set.
	Create(ctx context.Context, rec models.Record) (models.Record, error)

	// WriteAI writes the AI_* and metadata fields of the record with rec.ID
	// and marks it processed.
	WriteAI(ctx context.Context, rec models.Record, u models.AIUpdate) error

	Close() error
}

// Common record store errors
var (
	// ErrNotFound is returned when a record ID does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateNode is returned when creating a second record for a NodeID.
	ErrDuplicateNode = errors.New("record already exists for node")

	// ErrUnknownBackend is returned for an unsupported RECORD_STORE value.
	ErrUnknownBackend = errors.New("unknown record store backend")
)

// RecordStoreError wraps a failed store operation. A failed write-back leaves
// the document unprocessed, so a later batch picks it up again.
type RecordStoreError struct {
	// Op is the operation that failed (e.g., "WriteAI", "ListUnprocessed").
	Op string

	// Err is the underlying error.
	Err error

	// Backend names the store implementation.
	Backend string
}

// Error implements the error interface.
func (e *RecordStoreError) Error() string {
	return fmt.Sprintf("recordstore(%s): %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RecordStoreError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *RecordStoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordStoreError creates a new RecordStoreError.
func NewRecordStoreError(op string, err error, backend string) *RecordStoreError {
	return &RecordStoreError{Op: op, Err: err, Backend: backend}
}

// wrap returns nil for a nil err and never double-wraps.
func wrap(op string, err error, backend string) error {
	if err == nil {
		return nil
	}
	var rsErr *RecordStoreError
	if errors.As(err, &rsErr) {
		return err
	}
	return NewRecordStoreError(op, err, backend)
}

// SortByNodeID orders records by NodeID, numerically where possible.
func SortByNodeID(recs []models.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return models.NodeIDLess(recs[i].NodeID, recs[j].NodeID)
	})
}

// unprocessed filters, orders and limits recs.
func unprocessed(recs []models.Record, limit int) []models.Record {
	out := make([]models.Record, 0, len(recs))
	for _, r := range recs {
		if !r.AIProcessed {
			out = append(out, r)
		}
	}
	SortByNodeID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NodeIDs returns the set of NodeIDs present in recs.
func NodeIDs(recs []models.Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if r.NodeID != "" {
			ids[r.NodeID] = struct{}{}
		}
	}
	return ids
}

// Cell helpers for backends that hand back loosely typed values.

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

func asFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int64:
		f := float64(t)
		return &f
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

func asFloat(v any) float64 {
	if f := asFloatPtr(v); f != nil {
		return *f
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}

// fromFields builds a record from a column-name keyed map.
func fromFields(id string, f map[string]any) models.Record {
	return models.Record{
		ID:                 id,
		Title:              asString(f["Title"]),
		Filename:           asString(f["Filename"]),
		AIInvoiceNumber:    asString(f["AI_InvoiceNumber"]),
		AICompanyName:      asString(f["AI_CompanyName"]),
		AITotalAmount:      asFloatPtr(f["AI_TotalAmount"]),
		AIProcessed:        asBool(f["AI_Processed"]),
		AIConfidence:       asFloat(f["AI_Confidence"]),
		AIInvoiceDate:      asString(f["AI_InvoiceDate"]),
		HumanInvoiceNumber: asString(f["Human_InvoiceNumber"]),
		HumanInvoiceDate:   asString(f["Human_InvoiceDate"]),
		HumanCompanyName:   asString(f["Human_CompanyName"]),
		HumanTotalAmount:   asFloatPtr(f["Human_TotalAmount"]),
		HumanValidated:     asBool(f["Human_Validated"]),
		HumanNotes:         asString(f["Human_Notes"]),
		HumanFlagged:       asBool(f["Human_Flagged"]),
		GCDocsURL:          asString(f["GCDocsURL"]),
		NodeID:             asString(f["NodeID"]),
		OCRMethod:          asString(f["OCR_Method"]),
		LLMUsed:            asString(f["LLM_Used"]),
		TimeTaken:          asString(f["Time_Taken"]),
	}
}

// newRecordFields are the columns written when a record is first created.
// Human_* columns are left to the store's defaults.
func newRecordFields(r models.Record) map[string]any {
	return map[string]any{
		"Title":        r.Title,
		"Filename":     r.Filename,
		"AI_Processed": false,
		"GCDocsURL":    r.GCDocsURL,
		"NodeID":       r.NodeID,
	}
}

// aiFields are the columns the batch job writes back.
func aiFields(u models.AIUpdate) map[string]any {
	var rec models.Record
	u.Apply(&rec)

	var total any
	if rec.AITotalAmount != nil {
		total = *rec.AITotalAmount
	}
	return map[string]any{
		"AI_InvoiceNumber": rec.AIInvoiceNumber,
		"AI_CompanyName":   rec.AICompanyName,
		"AI_TotalAmount":   total,
		"AI_Processed":     true,
		"AI_Confidence":    rec.AIConfidence,
		"AI_InvoiceDate":   rec.AIInvoiceDate,
		"OCR_Method":       rec.OCRMethod,
		"LLM_Used":         rec.LLMUsed,
		"Time_Taken":       rec.TimeTaken,
	}
}
