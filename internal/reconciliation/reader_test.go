package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/recordstore"
	"invoicepipe/pkg/models"
)

func amount(f float64) *float64 { return &f }

func validated(nodeID string, mutate func(*models.Record)) models.Record {
	r := models.NewRecord(nodeID, nodeID+".pdf", "")
	r.AIProcessed = true
	r.HumanValidated = true
	r.AIConfidence = 0.8
	mutate(&r)
	return r
}

func TestCompare(t *testing.T) {
	recs := []models.Record{
		validated("1", func(r *models.Record) {
			r.AIInvoiceNumber, r.HumanInvoiceNumber = "INV-001", "inv-001"
			r.AICompanyName, r.HumanCompanyName = "Acme  Co", "ACME Co"
			r.AIInvoiceDate, r.HumanInvoiceDate = "2023-10-10", "Oct 10, 2023"
			r.AITotalAmount, r.HumanTotalAmount = amount(1234.56), amount(1234.561)
		}),
		validated("2", func(r *models.Record) {
			r.AIInvoiceNumber, r.HumanInvoiceNumber = "77", "78"
			r.AITotalAmount, r.HumanTotalAmount = nil, amount(50)
			r.AIConfidence = 0.4
			r.HumanFlagged = true
		}),
		{NodeID: "3", AIProcessed: true, AIInvoiceNumber: "X", HumanInvoiceNumber: "Y"},
		{NodeID: "4"},
	}

	r := Compare(recs)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 3, r.Processed)
	assert.Equal(t, 2, r.Validated)
	assert.Equal(t, 1, r.Flagged)
	assert.InDelta(t, 0.6, r.MeanConfidence, 1e-9)

	num := r.Field(FieldInvoiceNumber)
	assert.Equal(t, 2, num.Compared, "unvalidated records are ignored")
	assert.Equal(t, 1, num.Matched)
	assert.InDelta(t, 0.5, num.Accuracy(), 1e-9)

	assert.Equal(t, FieldStats{Field: FieldCompanyName, Compared: 1, Matched: 1}, r.Field(FieldCompanyName))
	assert.Equal(t, FieldStats{Field: FieldInvoiceDate, Compared: 1, Matched: 1}, r.Field(FieldInvoiceDate))
	assert.Equal(t, FieldStats{Field: FieldTotalAmount, Compared: 2, Matched: 1}, r.Field(FieldTotalAmount))

	require.Len(t, r.Mismatches, 2)
	assert.Equal(t, Mismatch{NodeID: "2", Field: FieldInvoiceNumber, AI: "77", Human: "78"}, r.Mismatches[0])
	assert.Equal(t, Mismatch{NodeID: "2", Field: FieldTotalAmount, AI: "", Human: "50.00"}, r.Mismatches[1])
}

func TestCompareEmpty(t *testing.T) {
	r := Compare(nil)
	assert.Zero(t, r.Validated)
	assert.Len(t, r.Fields, len(Fields))
	assert.Zero(t, r.Field(FieldTotalAmount).Accuracy())
}

func TestDataReaderReport(t *testing.T) {
	store := recordstore.NewMemoryStore(validated("5", func(r *models.Record) {
		r.AIInvoiceNumber, r.HumanInvoiceNumber = "A1", "A1"
	}))

	r, err := NewDataReader(store).Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Field(FieldInvoiceNumber).Matched)
	assert.Contains(t, r.String(), "human validated: 1")
}
