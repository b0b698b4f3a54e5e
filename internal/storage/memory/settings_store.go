package memory

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ProtectionSettings // keyed by identity
}

// NewSettingsStore creates a new in-memory settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		data: make(map[string]*domain.ProtectionSettings),
	}
}

// Get retrieves settings of an identity. Returns ErrNotFound if never saved.
func (s *SettingsStore) Get(_ context.Context, identity string) (*domain.ProtectionSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[identity]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *st
	return &copy, nil
}

// Upsert creates or replaces settings of an identity.
func (s *SettingsStore) Upsert(_ context.Context, st *domain.ProtectionSettings) error {
	if st == nil || st.Identity == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *st
	s.data[st.Identity] = &copy
	return nil
}

var _ storage.SettingsStore = (*SettingsStore)(nil)
