package abg

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the results log in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the results database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite results log: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	createResultsTable := `
    CREATE TABLE IF NOT EXISTS abg_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        logged_at TEXT NOT NULL,
        patient_name TEXT NOT NULL,
        ph REAL NOT NULL,
        pco2 REAL NOT NULL,
        po2 REAL NOT NULL,
        hco3 REAL NOT NULL,
        sao2 REAL NOT NULL,
        status TEXT NOT NULL
    );`
	_, err := s.db.Exec(createResultsTable)
	return err
}

func (s *SQLiteStore) Description() string { return "results log" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	query := `INSERT INTO abg_results (logged_at, patient_name, ph, pco2, po2, hco3, sao2, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.Timestamp, rec.PatientName, rec.PH, rec.PCO2, rec.PO2, rec.HCO3, rec.SaO2, string(rec.Status))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Record, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM abg_results`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT logged_at, patient_name, ph, pco2, po2, hco3, sao2, status FROM abg_results ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.Timestamp, &rec.PatientName, &rec.PH, &rec.PCO2, &rec.PO2, &rec.HCO3, &rec.SaO2, &status); err != nil {
			return nil, 0, err
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	return records, total, rows.Err()
}
