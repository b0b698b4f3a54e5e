package memory

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// StatsStore is an in-memory implementation of storage.StatsStore.
type StatsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.IdentityStats // keyed by identity
}

// NewStatsStore creates a new in-memory stats store.
func NewStatsStore() *StatsStore {
	return &StatsStore{
		data: make(map[string]*domain.IdentityStats),
	}
}

// Get retrieves stats of an identity. Returns ErrNotFound if none recorded yet.
func (s *StatsStore) Get(_ context.Context, identity string) (*domain.IdentityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[identity]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *st
	return &copy, nil
}

// Upsert creates or replaces stats of an identity.
func (s *StatsStore) Upsert(_ context.Context, st *domain.IdentityStats) error {
	if st == nil || st.Identity == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *st
	s.data[st.Identity] = &copy
	return nil
}

var _ storage.StatsStore = (*StatsStore)(nil)
