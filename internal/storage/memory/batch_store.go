package memory

import (
	"context"
	"sort"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// BatchStore is an in-memory implementation of storage.BatchStore.
type BatchStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Batch // keyed by id
}

// NewBatchStore creates a new in-memory batch store.
func NewBatchStore() *BatchStore {
	return &BatchStore{
		data: make(map[string]*domain.Batch),
	}
}

// Insert adds a new batch. Returns ErrDuplicateKey if id exists.
func (s *BatchStore) Insert(_ context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[b.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[b.ID] = cloneBatch(b)
	return nil
}

// Update replaces an existing batch. Terminal batches cannot be changed.
func (s *BatchStore) Update(_ context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[b.ID]
	if !exists {
		return storage.ErrNotFound
	}
	if existing.Status.IsTerminal() {
		return storage.ErrImmutable
	}

	updated := cloneBatch(b)
	updated.CreatedAt = existing.CreatedAt
	s.data[b.ID] = updated
	return nil
}

// GetByID retrieves a batch by its ID. Returns ErrNotFound if not exists.
func (s *BatchStore) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneBatch(b), nil
}

// GetByIdentity retrieves batches with a member owned by identity, ordered by created_at DESC.
func (s *BatchStore) GetByIdentity(_ context.Context, identity string) ([]*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Batch
	for _, b := range s.data {
		for _, m := range b.Members {
			if m.Identity == identity {
				result = append(result, cloneBatch(b))
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetByStatus retrieves all batches in a status, ordered by created_at ASC.
func (s *BatchStore) GetByStatus(_ context.Context, status domain.BatchStatus) ([]*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Batch
	for _, b := range s.data {
		if b.Status == status {
			result = append(result, cloneBatch(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func cloneBatch(b *domain.Batch) *domain.Batch {
	c := b.Clone()
	if b.SealTrigger != nil {
		v := *b.SealTrigger
		c.SealTrigger = &v
	}
	if b.ExecutedAt != nil {
		v := *b.ExecutedAt
		c.ExecutedAt = &v
	}
	if b.CompletedAt != nil {
		v := *b.CompletedAt
		c.CompletedAt = &v
	}
	if b.ExecutionTimeMs != nil {
		v := *b.ExecutionTimeMs
		c.ExecutionTimeMs = &v
	}
	return c
}

var _ storage.BatchStore = (*BatchStore)(nil)
