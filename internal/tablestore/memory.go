package tablestore

import (
	"context"
	"sync"
)

// MemoryStore keeps the slot in process memory. Used by tests and as a
// throwaway backend when no persistence is wanted.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
	written bool
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed primes the slot with an existing payload, as if a previous
// process had written it.
func (s *MemoryStore) Seed(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	s.written = true
}

// Load implements ratings.TableStore.
func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.written {
		return nil, nil
	}
	return append([]byte(nil), s.payload...), nil
}

// Save implements ratings.TableStore.
func (s *MemoryStore) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	s.written = true
	return nil
}
