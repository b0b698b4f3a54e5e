package memory

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// ProofStore is an in-memory implementation of storage.ProofStore.
type ProofStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.ProofOfRoute // keyed by proof_hash
	byTxID map[string]string               // transaction_id -> proof_hash
}

// NewProofStore creates a new in-memory proof store.
func NewProofStore() *ProofStore {
	return &ProofStore{
		data:   make(map[string]*domain.ProofOfRoute),
		byTxID: make(map[string]string),
	}
}

// Insert adds a new proof. Returns ErrDuplicateKey if hash or transaction exists.
func (s *ProofStore) Insert(_ context.Context, p *domain.ProofOfRoute) error {
	if p == nil || p.ProofHash == "" || p.TransactionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ProofHash]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byTxID[p.TransactionID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[p.ProofHash] = cloneProof(p)
	s.byTxID[p.TransactionID] = p.ProofHash
	return nil
}

// GetByHash retrieves a proof by its content hash.
func (s *ProofStore) GetByHash(_ context.Context, hash string) (*domain.ProofOfRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneProof(p), nil
}

// GetByTransactionID retrieves the proof of a transaction.
func (s *ProofStore) GetByTransactionID(_ context.Context, txID string) (*domain.ProofOfRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, exists := s.byTxID[txID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneProof(s.data[hash]), nil
}

func cloneProof(p *domain.ProofOfRoute) *domain.ProofOfRoute {
	c := *p
	c.Routes = append([]domain.ProofRoute(nil), p.Routes...)
	c.Detections = append([]domain.Detection(nil), p.Detections...)
	return &c
}

var _ storage.ProofStore = (*ProofStore)(nil)
