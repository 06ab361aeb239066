package abg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type recordRepoPG struct {
	conn queryable
}

// NewRecordRepo returns a RecordStore on the abg_results table. The schema
// is created by the migrator.
func NewRecordRepo(pool *pgxpool.Pool) RecordStore {
	return &recordRepoPG{conn: pool}
}

const recordColumns = `logged_at, patient_name, ph, pco2, po2, hco3, sao2, status`

func (r *recordRepoPG) Description() string { return "results database" }

func (r *recordRepoPG) Append(ctx context.Context, rec Record) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO abg_results (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Timestamp, rec.PatientName, rec.PH, rec.PCO2, rec.PO2, rec.HCO3, rec.SaO2, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r *recordRepoPG) List(ctx context.Context, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM abg_results`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + recordColumns + ` FROM abg_results ORDER BY id OFFSET $1`
	args := []interface{}{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
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
