package abg

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func sampleRecord(i int) Record {
	s := Sample{
		PatientName: fmt.Sprintf("Patient %d", i),
		PH:          7.35 + float64(i)/100,
		PCO2:        40.5,
		PO2:         90,
		HCO3:        24.2,
		SaO2:        98,
	}
	status := StatusNormal
	if i%2 == 1 {
		status = StatusAbnormal
	}
	return NewRecord(fmt.Sprintf("2025-01-01 10:00:%02d", i), s, status)
}

// testStoreContract checks append-only ordering and paging for any store.
func testStoreContract(t *testing.T, store RecordStore) {
	t.Helper()
	ctx := context.Background()

	records, total, err := store.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List on empty store: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Fatalf("expected empty store, got %d", total)
	}

	const n, m = 3, 4
	for i := 0; i < n; i++ {
		if err := store.Append(ctx, sampleRecord(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if _, total, _ := store.List(ctx, 0, 0); total != n {
		t.Fatalf("expected %d rows, got %d", n, total)
	}
	for i := n; i < n+m; i++ {
		if err := store.Append(ctx, sampleRecord(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	records, total, err = store.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != n+m || len(records) != n+m {
		t.Fatalf("expected %d rows, got %d/%d", n+m, len(records), total)
	}
	for i, rec := range records {
		if rec != sampleRecord(i) {
			t.Errorf("row %d changed: got %+v, want %+v", i, rec, sampleRecord(i))
		}
	}

	page, total, err := store.List(ctx, 2, 5)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if total != n+m || len(page) != 2 || page[0] != sampleRecord(5) || page[1] != sampleRecord(6) {
		t.Errorf("unexpected page %+v (total %d)", page, total)
	}

	past, _, err := store.List(ctx, 10, 100)
	if err != nil || len(past) != 0 {
		t.Errorf("expected empty page past the end, got %d (%v)", len(past), err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "abg_results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	testStoreContract(t, store)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abg_results.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	store.Append(context.Background(), sampleRecord(0))
	store.Close()

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	records, total, _ := store.List(context.Background(), 0, 0)
	if total != 1 || records[0] != sampleRecord(0) {
		t.Errorf("expected persisted row, got %+v", records)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		n, limit, offset int
		start, end       int
	}{
		{10, 0, 0, 0, 10},
		{10, 3, 0, 0, 3},
		{10, 3, 8, 8, 10},
		{10, 3, 12, 10, 10},
		{10, 0, -2, 0, 10},
		{0, 5, 0, 0, 0},
	}
	for _, tt := range tests {
		start, end := window(tt.n, tt.limit, tt.offset)
		if start != tt.start || end != tt.end {
			t.Errorf("window(%d, %d, %d) = %d, %d; want %d, %d", tt.n, tt.limit, tt.offset, start, end, tt.start, tt.end)
		}
	}
}
