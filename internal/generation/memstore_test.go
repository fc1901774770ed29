package generation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[uuid.UUID]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
