package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/nothing")
	assert.Error(t, err)
}

func TestColumnLayout(t *testing.T) {
	assert.Equal(t, "T", lastColumn)
	assert.Equal(t, "C", columnName(columnIndex("AI_InvoiceNumber")))
	assert.Equal(t, "Q", columnName(columnIndex("NodeID")))
}

func TestRowsToRecords(t *testing.T) {
	rows := [][]interface{}{
		{"a.pdf", "a.pdf", "", "", "", false, 0.0, "", "", "", "", "", false, "", false, "https://x/1", "101"},
		{},
		{"b.pdf", "b.pdf", "INV-1", "Beta", 99.5, true, 0.7, "2024-01-31", "", "", "", "", false, "", false, "", float64(102), "vision/full_page", "llama", "3.0s"},
	}

	recs := rowsToRecords(rows, 2)
	require.Len(t, recs, 2)

	assert.Equal(t, "2", recs[0].ID)
	assert.Equal(t, "101", recs[0].NodeID)
	assert.False(t, recs[0].AIProcessed)
	assert.Nil(t, recs[0].AITotalAmount)

	assert.Equal(t, "4", recs[1].ID, "blank rows keep their row numbers")
	assert.Equal(t, "102", recs[1].NodeID)
	assert.True(t, recs[1].AIProcessed)
	require.NotNil(t, recs[1].AITotalAmount)
	assert.InDelta(t, 99.5, *recs[1].AITotalAmount, 1e-9)
	assert.Equal(t, "3.0s", recs[1].TimeTaken)
}

func TestRowFromRange(t *testing.T) {
	assert.Equal(t, "7", rowFromRange("'Invoices'!A7:T7"))
	assert.Equal(t, "12", rowFromRange("Invoices!A12:T12"))
	assert.Equal(t, "", rowFromRange("garbage"))
}

func TestCheckHeaders(t *testing.T) {
	header := make([]interface{}, 0, 20)
	for _, c := range []string{
		"Title", "Filename", "AI_InvoiceNumber", "AI_CompanyName", "AI_TotalAmount", "AI_Processed",
		"AI_Confidence", "AI_InvoiceDate", "Human_InvoiceNumber", "Human_InvoiceDate", "Human_CompanyName",
		"Human_TotalAmount", "Human_Validated", "Human_Notes", "Human_Flagged", "GCDocsURL", "NodeID",
		"OCR_Method", "LLM_Used", "Time_Taken",
	} {
		header = append(header, c)
	}
	assert.NoError(t, checkHeaders(header))
	assert.Error(t, checkHeaders(header[:5]))
}
