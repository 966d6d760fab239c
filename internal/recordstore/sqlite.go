package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"invoicepipe/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	Title               TEXT NOT NULL DEFAULT '',
	Filename            TEXT NOT NULL DEFAULT '',
	AI_InvoiceNumber    TEXT NOT NULL DEFAULT '',
	AI_CompanyName      TEXT NOT NULL DEFAULT '',
	AI_TotalAmount      REAL,
	AI_Processed        INTEGER NOT NULL DEFAULT 0,
	AI_Confidence       REAL NOT NULL DEFAULT 0,
	AI_InvoiceDate      TEXT NOT NULL DEFAULT '',
	Human_InvoiceNumber TEXT NOT NULL DEFAULT '',
	Human_InvoiceDate   TEXT NOT NULL DEFAULT '',
	Human_CompanyName   TEXT NOT NULL DEFAULT '',
	Human_TotalAmount   REAL,
	Human_Validated     INTEGER NOT NULL DEFAULT 0,
	Human_Notes         TEXT NOT NULL DEFAULT '',
	Human_Flagged       INTEGER NOT NULL DEFAULT 0,
	GCDocsURL           TEXT NOT NULL DEFAULT '',
	NodeID              TEXT NOT NULL DEFAULT '',
	OCR_Method          TEXT NOT NULL DEFAULT '',
	LLM_Used            TEXT NOT NULL DEFAULT '',
	Time_Taken          TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_node ON records(NodeID) WHERE NodeID <> '';
CREATE INDEX IF NOT EXISTS idx_records_processed ON records(AI_Processed);
`

var selectColumns = "id, " + strings.Join(models.Columns, ", ")

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	const op = "OpenSQLite"

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, NewRecordStoreError(op, err, "sqlite")
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to create schema: %w", err), "sqlite")
	}
	return &SQLiteStore{db: db}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Record, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM records`)
	if err != nil {
		return nil, wrap("List", err, "sqlite")
	}
	SortByNodeID(recs)
	return recs, nil
}

// ListUnprocessed implements Store.
func (s *SQLiteStore) ListUnprocessed(ctx context.Context, limit int) ([]models.Record, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM records WHERE AI_Processed = 0`)
	if err != nil {
		return nil, wrap("ListUnprocessed", err, "sqlite")
	}
	return unprocessed(recs, limit), nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Record
	for rows.Next() {
		var (
			r          models.Record
			id         int64
			aiTotal    sql.NullFloat64
			humanTotal sql.NullFloat64
		)
		err := rows.Scan(
			&id, &r.Title, &r.Filename,
			&r.AIInvoiceNumber, &r.AICompanyName, &aiTotal, &r.AIProcessed, &r.AIConfidence, &r.AIInvoiceDate,
			&r.HumanInvoiceNumber, &r.HumanInvoiceDate, &r.HumanCompanyName, &humanTotal,
			&r.HumanValidated, &r.HumanNotes, &r.HumanFlagged,
			&r.GCDocsURL, &r.NodeID, &r.OCRMethod, &r.LLMUsed, &r.TimeTaken,
		)
		if err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		if aiTotal.Valid {
			r.AITotalAmount = &aiTotal.Float64
		}
		if humanTotal.Valid {
			r.HumanTotalAmount = &humanTotal.Float64
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	const op = "Create"

	if rec.NodeID != "" {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE NodeID = ?`, rec.NodeID).Scan(&count); err != nil {
			return models.Record{}, NewRecordStoreError(op, err, "sqlite")
		}
		if count > 0 {
			return models.Record{}, NewRecordStoreError(op, fmt.Errorf("%w: %s", ErrDuplicateNode, rec.NodeID), "sqlite")
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (Title, Filename, GCDocsURL, NodeID, AI_Processed) VALUES (?, ?, ?, ?, 0)`,
		rec.Title, rec.Filename, rec.GCDocsURL, rec.NodeID,
	)
	if err != nil {
		return models.Record{}, NewRecordStoreError(op, err, "sqlite")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Record{}, NewRecordStoreError(op, err, "sqlite")
	}

	created := models.NewRecord(rec.NodeID, rec.Filename, rec.GCDocsURL)
	created.Title = rec.Title
	created.ID = strconv.FormatInt(id, 10)
	return created, nil
}

// WriteAI implements Store.
func (s *SQLiteStore) WriteAI(ctx context.Context, rec models.Record, u models.AIUpdate) error {
	const op = "WriteAI"

	var cur models.Record
	u.Apply(&cur)

	var total any
	if cur.AITotalAmount != nil {
		total = *cur.AITotalAmount
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET
			AI_InvoiceNumber = ?, AI_CompanyName = ?, AI_TotalAmount = ?, AI_Processed = 1,
			AI_Confidence = ?, AI_InvoiceDate = ?, OCR_Method = ?, LLM_Used = ?, Time_Taken = ?
		 WHERE id = ?`,
		cur.AIInvoiceNumber, cur.AICompanyName, total,
		cur.AIConfidence, cur.AIInvoiceDate, cur.OCRMethod, cur.LLMUsed, cur.TimeTaken,
		rec.ID,
	)
	if err != nil {
		return NewRecordStoreError(op, err, "sqlite")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewRecordStoreError(op, err, "sqlite")
	}
	if n == 0 {
		return NewRecordStoreError(op, fmt.Errorf("%w: %s", ErrNotFound, rec.ID), "sqlite")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
