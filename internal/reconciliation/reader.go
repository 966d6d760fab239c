package reconciliation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"invoicepipe/internal/invoice"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/recordstore"
	"invoicepipe/pkg/models"
)

// amountTolerance is the largest difference at which two totals agree.
const amountTolerance = 0.01

// DataReader builds accuracy reports from a record store. It only reads.
type DataReader struct {
	store recordstore.Store
	log   zerolog.Logger
}

// NewDataReader creates a reader over store.
func NewDataReader(store recordstore.Store) *DataReader {
	return &DataReader{
		store: store,
		log:   logger.WithComponent("reconciliation"),
	}
}

// Report reads every record and compares AI values with validated human values.
func (dr *DataReader) Report(ctx context.Context) (*Report, error) {
	const op = "Report"

	recs, err := dr.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read records: %w", op, err)
	}

	r := Compare(recs)

	dr.log.Info().
		Int("total", r.Total).
		Int("validated", r.Validated).
		Int("mismatches", len(r.Mismatches)).
		Msg("Accuracy report built")

	return r, nil
}

// Compare scores AI fields against Human fields over validated records.
// Invoice numbers and company names agree ignoring case and spacing, dates
// agree after normalization, and totals agree within one cent.
func Compare(recs []models.Record) *Report {
	r := &Report{Total: len(recs)}
	stats := make(map[string]*FieldStats, len(Fields))
	for _, f := range Fields {
		stats[f] = &FieldStats{Field: f}
	}

	var confSum float64
	for _, rec := range recs {
		if rec.AIProcessed {
			r.Processed++
		}
		if rec.HumanFlagged {
			r.Flagged++
		}
		if !rec.HumanValidated {
			continue
		}
		r.Validated++
		confSum += rec.AIConfidence

		check := func(field, ai, human string, equal func(a, b string) bool) {
			if strings.TrimSpace(human) == "" {
				return
			}
			stats[field].Compared++
			if equal(ai, human) {
				stats[field].Matched++
				return
			}
			r.Mismatches = append(r.Mismatches, Mismatch{NodeID: rec.NodeID, Field: field, AI: ai, Human: human})
		}

		check(FieldInvoiceNumber, rec.AIInvoiceNumber, rec.HumanInvoiceNumber, sameText)
		check(FieldCompanyName, rec.AICompanyName, rec.HumanCompanyName, sameText)
		check(FieldInvoiceDate, rec.AIInvoiceDate, rec.HumanInvoiceDate, sameDate)
		if rec.HumanTotalAmount != nil {
			ai, human := models.FormatAmount(rec.AITotalAmount), models.FormatAmount(rec.HumanTotalAmount)
			check(FieldTotalAmount, ai, human, func(string, string) bool {
				return sameAmount(rec.AITotalAmount, rec.HumanTotalAmount)
			})
		}
	}

	if r.Validated > 0 {
		r.MeanConfidence = math.Round(confSum/float64(r.Validated)*100) / 100
	}
	for _, f := range Fields {
		r.Fields = append(r.Fields, *stats[f])
	}
	return r
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func sameDate(a, b string) bool {
	na, _ := invoice.NormalizeDate(strings.TrimSpace(a))
	nb, _ := invoice.NormalizeDate(strings.TrimSpace(b))
	return na != "" && na == nb
}

func sameAmount(a, b *float64) bool {
	if a == nil || b == nil {
		return false
	}
	return math.Abs(*a-*b) < amountTolerance+1e-9
}
