package abg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// ErrLogFormat is returned when an existing results log does not have the
// expected header or holds a row that cannot be read back.
var ErrLogFormat = errors.New("unrecognised results log format")

// xlsxStore keeps the results log as a single-sheet workbook. Every append
// reads all rows, adds one and rewrites the file. Writes go to a temporary
// file in the same directory and are renamed into place, and the mutex
// serialises appends within this process. Other processes writing the same
// file are not coordinated.
type xlsxStore struct {
	mu   sync.Mutex
	path string
}

// NewXLSXStore returns a RecordStore backed by the workbook at path. The file
// is created on first append.
func NewXLSXStore(path string) RecordStore {
	return &xlsxStore{path: path}
}

func (s *xlsxStore) Description() string { return "Excel log" }

func (s *xlsxStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeAll(append(records, rec))
}

func (s *xlsxStore) List(_ context.Context, limit, offset int) ([]Record, int, error) {
	s.mu.Lock()
	records, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	start, end := window(len(records), limit, offset)
	return records[start:end], len(records), nil
}

func (s *xlsxStore) readAll() ([]Record, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat results log: %w", err)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrLogFormat)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrLogFormat, i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *xlsxStore) writeAll(records []Record) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := rec.Row()
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	f.SetColWidth(sheet, "A", "A", 20)
	f.SetColWidth(sheet, "B", "B", 24)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results log directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".abg-results-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp results log: %w", err)
	}
	tmpName := tmp.Name()
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode results log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp results log: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace results log: %w", err)
	}
	return nil
}

func checkHeader(row []string) error {
	if len(row) < len(Columns) {
		return fmt.Errorf("%w: header has %d columns, want %d", ErrLogFormat, len(row), len(Columns))
	}
	for i, want := range Columns {
		if strings.TrimSpace(row[i]) != want {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrLogFormat, i+1, row[i], want)
		}
	}
	return nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string) (Record, error) {
	cells := make([]string, len(Columns))
	copy(cells, row)

	var readings [5]float64
	for i := range readings {
		v, err := strconv.ParseFloat(strings.TrimSpace(cells[2+i]), 64)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %q is not a number", Columns[2+i], cells[2+i])
		}
		readings[i] = v
	}
	return Record{
		Timestamp:   cells[0],
		PatientName: cells[1],
		PH:          readings[0],
		PCO2:        readings[1],
		PO2:         readings[2],
		HCO3:        readings[3],
		SaO2:        readings[4],
		Status:      Status(cells[7]),
	}, nil
}
