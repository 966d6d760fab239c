package recordstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"invoicepipe/pkg/models"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
	nextID  int
}

// NewMemoryStore returns a store seeded with recs. Records without an ID get one.
func NewMemoryStore(recs ...models.Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]models.Record)}
	for _, r := range recs {
		s.nextID++
		if r.ID == "" {
			r.ID = strconv.Itoa(s.nextID)
		}
		s.records[r.ID] = r
	}
	return s
}

// List returns all records ordered by NodeID.
func (s *MemoryStore) List(_ context.Context) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	SortByNodeID(out)
	return out, nil
}

// ListUnprocessed implements Store.
func (s *MemoryStore) ListUnprocessed(ctx context.Context, limit int) ([]models.Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return unprocessed(all, limit), nil
}

// Get returns the record with id.
func (s *MemoryStore) Get(id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return models.Record{}, NewRecordStoreError("Get", fmt.Errorf("%w: %s", ErrNotFound, id), "memory")
	}
	return r, nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if rec.NodeID != "" && r.NodeID == rec.NodeID {
			return models.Record{}, NewRecordStoreError("Create", fmt.Errorf("%w: %s", ErrDuplicateNode, rec.NodeID), "memory")
		}
	}

	s.nextID++
	rec.ID = strconv.Itoa(s.nextID)
	s.records[rec.ID] = rec
	return rec, nil
}

// WriteAI implements Store.
func (s *MemoryStore) WriteAI(_ context.Context, rec models.Record, u models.AIUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.ID]
	if !ok {
		return NewRecordStoreError("WriteAI", fmt.Errorf("%w: %s", ErrNotFound, rec.ID), "memory")
	}
	u.Apply(&cur)
	s.records[rec.ID] = cur
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
