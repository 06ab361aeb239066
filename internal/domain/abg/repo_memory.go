package abg

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore returns a RecordStore that lives for the process.
func NewMemoryStore() RecordStore {
	return &memoryStore{}
}

func (s *memoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) List(_ context.Context, limit, offset int) ([]Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, end := window(len(s.records), limit, offset)
	out := make([]Record, end-start)
	copy(out, s.records[start:end])
	return out, len(s.records), nil
}

func (s *memoryStore) Description() string { return "in-memory results log" }
