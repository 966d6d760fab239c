package recordstore

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"invoicepipe/internal/logger"
	"invoicepipe/pkg/models"
)

// SheetsStore keeps records as rows of a Google Sheets worksheet. Row 1 holds
// the column names; a record's ID is its 1-based row number.
type SheetsStore struct {
	sheetsService *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger
}

// NewSheetsStore connects with the service account from
// GOOGLE_APPLICATION_CREDENTIALS (file) or GOOGLE_CREDENTIALS (JSON) and
// makes sure the worksheet and its header row exist.
func NewSheetsStore(ctx context.Context, sheetURL, worksheet string) (*SheetsStore, error) {
	const op = "NewSheetsStore"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to extract spreadsheet ID: %w", err), "sheets")
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, NewRecordStoreError(op, fmt.Errorf("failed to read credentials file: %w", err), "sheets")
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, NewRecordStoreError(op, fmt.Errorf("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set"), "sheets")
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to parse credentials: %w", err), "sheets")
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to create sheets service: %w", err), "sheets")
	}

	return NewSheetsStoreWithService(ctx, sheetsService, spreadsheetID, worksheet)
}

// NewSheetsStoreWithService uses an existing Sheets client.
func NewSheetsStoreWithService(ctx context.Context, svc *sheets.Service, spreadsheetID, worksheet string) (*SheetsStore, error) {
	s := &SheetsStore{
		sheetsService: svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		log:           logger.WithComponent("sheets"),
	}
	if err := s.ensureSheetWithHeaders(ctx); err != nil {
		return nil, NewRecordStoreError("NewSheetsStore", err, "sheets")
	}
	return s, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	re := regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	matches := re.FindStringSubmatch(url)

	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}

	return matches[1], nil
}

// lastColumn is the letter of the final record column.
var lastColumn = columnName(len(models.Columns))

func columnName(n int) string {
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		panic(err)
	}
	return name
}

func columnIndex(column string) int {
	for i, c := range models.Columns {
		if c == column {
			return i + 1
		}
	}
	panic("unknown column " + column)
}

func (s *SheetsStore) rangeOf(from, to string) string {
	return fmt.Sprintf("'%s'!%s:%s", s.worksheet, from, to)
}

// List implements Store.
func (s *SheetsStore) List(ctx context.Context) ([]models.Record, error) {
	const op = "List"

	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A2", lastColumn)).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to read rows: %w", err), "sheets")
	}

	recs := rowsToRecords(resp.Values, 2)

	s.log.Debug().
		Int("rows", len(resp.Values)).
		Int("records", len(recs)).
		Msg("Read records from sheet")

	SortByNodeID(recs)
	return recs, nil
}

// rowsToRecords converts sheet rows starting at firstRow; blank rows are skipped.
func rowsToRecords(rows [][]interface{}, firstRow int) []models.Record {
	recs := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		fields := make(map[string]any, len(models.Columns))
		blank := true
		for c, name := range models.Columns {
			if c < len(row) {
				fields[name] = row[c]
				if asString(row[c]) != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}
		recs = append(recs, fromFields(strconv.Itoa(firstRow+i), fields))
	}
	return recs
}

// ListUnprocessed implements Store.
func (s *SheetsStore) ListUnprocessed(ctx context.Context, limit int) ([]models.Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, wrap("ListUnprocessed", err, "sheets")
	}
	return unprocessed(all, limit), nil
}

// Create appends a row.
func (s *SheetsStore) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	const op = "Create"

	fields := newRecordFields(rec)
	row := make([]interface{}, len(models.Columns))
	for i, name := range models.Columns {
		if v, ok := fields[name]; ok {
			row[i] = v
		} else {
			row[i] = ""
		}
	}

	resp, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.rangeOf("A", lastColumn),
		&sheets.ValueRange{Values: [][]interface{}{row}},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return models.Record{}, NewRecordStoreError(op, fmt.Errorf("failed to append row: %w", err), "sheets")
	}

	created := rec
	if resp.Updates != nil {
		created.ID = rowFromRange(resp.Updates.UpdatedRange)
	}
	created.AIProcessed = false
	return created, nil
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange returns the first row number of an A1 range like "'Invoices'!A7:T7".
func rowFromRange(a1 string) string {
	m := rangeRowRe.FindStringSubmatch(a1)
	if m == nil {
		return ""
	}
	return m[1]
}

// WriteAI updates the AI and metadata cells of the record's row.
func (s *SheetsStore) WriteAI(ctx context.Context, rec models.Record, u models.AIUpdate) error {
	const op = "WriteAI"

	row, err := strconv.Atoi(rec.ID)
	if err != nil || row < 2 {
		return NewRecordStoreError(op, fmt.Errorf("%w: invalid row %q", ErrNotFound, rec.ID), "sheets")
	}

	var data []*sheets.ValueRange
	for name, v := range aiFields(u) {
		if v == nil {
			v = ""
		}
		cell := columnName(columnIndex(name)) + strconv.Itoa(row)
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("'%s'!%s", s.worksheet, cell),
			Values: [][]interface{}{{v}},
		})
	}

	_, err = s.sheetsService.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return NewRecordStoreError(op, fmt.Errorf("failed to update row %d: %w", row, err), "sheets")
	}

	s.log.Debug().Int("row", row).Str("node_id", rec.NodeID).Msg("Wrote AI fields")
	return nil
}

// Close is a no-op.
func (s *SheetsStore) Close() error { return nil }

// ensureSheetWithHeaders ensures the worksheet exists and has the column header row
func (s *SheetsStore) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == s.worksheet {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", s.worksheet).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: s.worksheet},
				}},
			},
		}

		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}

		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := s.rangeOf("A1", lastColumn+"1")
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return checkHeaders(resp.Values[0])
	}

	s.log.Info().Str("sheet", s.worksheet).Msg("Adding headers to sheet")

	header := make([]interface{}, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{header}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// checkHeaders rejects a worksheet whose header row is not the record layout.
func checkHeaders(got []interface{}) error {
	for i, want := range models.Columns {
		if i >= len(got) || !strings.EqualFold(strings.TrimSpace(asString(got[i])), want) {
			return fmt.Errorf("unexpected header in column %s: want %q", columnName(i+1), want)
		}
	}
	return nil
}

// formatHeaders makes the header row bold and freezes it
func (s *SheetsStore) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	cols := int64(len(models.Columns))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   cols,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.9,
							Green: 0.9,
							Blue:  0.9,
						},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   cols,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}

	return nil
}
