package memory

import (
	"context"
	"sort"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// ExecutionLogStore is an in-memory implementation of storage.ExecutionLogStore.
type ExecutionLogStore struct {
	mu   sync.RWMutex
	data []*domain.ExecutionRecord
	keys map[string]struct{} // transaction_id
}

// NewExecutionLogStore creates a new in-memory execution log store.
func NewExecutionLogStore() *ExecutionLogStore {
	return &ExecutionLogStore{
		keys: make(map[string]struct{}),
	}
}

// Insert appends a record. Returns ErrDuplicateKey if transaction_id exists.
func (s *ExecutionLogStore) Insert(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.TransactionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[r.TransactionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data = append(s.data, &copy)
	s.keys[r.TransactionID] = struct{}{}
	return nil
}

// GetByIdentity retrieves the most recent records of an identity.
func (s *ExecutionLogStore) GetByIdentity(_ context.Context, identity string, limit int) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionRecord
	for _, r := range s.data {
		if r.Identity == identity {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CompletedAt != result[j].CompletedAt {
			return result[i].CompletedAt > result[j].CompletedAt
		}
		return result[i].TransactionID < result[j].TransactionID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.ExecutionLogStore = (*ExecutionLogStore)(nil)
