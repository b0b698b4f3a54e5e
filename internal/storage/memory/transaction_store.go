package memory

import (
	"context"
	"sort"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Transaction // keyed by id
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string]*domain.Transaction),
	}
}

// Insert adds a new transaction. Returns ErrDuplicateKey if id exists.
func (s *TransactionStore) Insert(_ context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tx.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[tx.ID] = cloneTransaction(tx)
	return nil
}

// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// GetByIdentity retrieves all transactions of an identity, ordered by created_at DESC.
func (s *TransactionStore) GetByIdentity(_ context.Context, identity string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.data {
		if tx.Identity == identity {
			result = append(result, cloneTransaction(tx))
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

// UpdateStatus moves a non-terminal transaction to status.
func (s *TransactionStore) UpdateStatus(_ context.Context, id string, status domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if tx.Status.IsTerminal() {
		return storage.ErrImmutable
	}
	tx.Status = status
	return nil
}

// AssignBatch records the batch a transaction was admitted to.
func (s *TransactionStore) AssignBatch(_ context.Context, id, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	b := batchID
	tx.BatchID = &b
	return nil
}

// Complete writes the completion fields exactly once.
func (s *TransactionStore) Complete(_ context.Context, c *domain.Completion) (*domain.Transaction, error) {
	if c == nil || c.TransactionID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.data[c.TransactionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if tx.Status.IsTerminal() {
		return nil, storage.ErrImmutable
	}

	route := c.ExecutedRoute
	completedAt := c.CompletedAt
	tx.Status = domain.TxStatusCompleted
	tx.ExecutedRoute = &route
	tx.UsedProtectedRoute = c.UsedProtectedRoute
	tx.ActualSavings = c.ActualSavings
	tx.ExecutionTimeMs = c.ExecutionTimeMs
	tx.CompletedAt = &completedAt

	return cloneTransaction(tx), nil
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Routes = append([]domain.Route(nil), tx.Routes...)
	c.RiskFactors = append([]string(nil), tx.RiskFactors...)
	if tx.BatchID != nil {
		v := *tx.BatchID
		c.BatchID = &v
	}
	if tx.ExecutedRoute != nil {
		v := *tx.ExecutedRoute
		c.ExecutedRoute = &v
	}
	if tx.CompletedAt != nil {
		v := *tx.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
