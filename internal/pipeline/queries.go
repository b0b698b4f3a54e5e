package pipeline

import (
	"context"
	"errors"
	"fmt"

	"swap-guard/internal/domain"
	"swap-guard/internal/proof"
	"swap-guard/internal/storage"
)

// Transactions returns an identity's transactions, newest first.
func (s *Service) Transactions(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	return s.transactions.GetByIdentity(ctx, identity)
}

// Transaction returns one transaction.
func (s *Service) Transaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

// Stats returns an identity's statistics, zeroed if it has no completions.
func (s *Service) Stats(ctx context.Context, identity string) (*domain.IdentityStats, error) {
	return s.aggregator.Get(ctx, identity)
}

// Proof returns the proof of a completed transaction.
func (s *Service) Proof(ctx context.Context, transactionID string) (*domain.ProofOfRoute, error) {
	return s.proofs.GetByTransactionID(ctx, transactionID)
}

// VerifyProof reports whether hash is the stored proof hash of transactionID.
func (s *Service) VerifyProof(ctx context.Context, transactionID, hash string) (bool, error) {
	p, err := s.proofs.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	err = proof.Verify(p, hash, transactionID)
	if errors.Is(err, proof.ErrHashMismatch) || errors.Is(err, proof.ErrTransactionMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Batches returns batches containing any of identity's transactions, newest first.
func (s *Service) Batches(ctx context.Context, identity string) ([]*domain.Batch, error) {
	return s.batches.GetByIdentity(ctx, identity)
}

// Batch returns one batch.
func (s *Service) Batch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.batches.GetByID(ctx, id)
}

// CurrentBatch returns the pending batch, or nil.
func (s *Service) CurrentBatch() *domain.Batch {
	return s.coordinator.Current()
}

// CancelBatch fails the pending batch id without committing it.
func (s *Service) CancelBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.coordinator.Cancel(ctx, id)
}

// Settings returns an identity's protection settings, or defaults.
func (s *Service) Settings(ctx context.Context, identity string) (*domain.ProtectionSettings, error) {
	st, err := s.settings.Get(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.DefaultProtectionSettings(identity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", identity, err)
	}
	return st, nil
}

// UpdateSettings validates and stores protection settings.
func (s *Service) UpdateSettings(ctx context.Context, st *domain.ProtectionSettings) (*domain.ProtectionSettings, error) {
	if err := validateSettings(st); err != nil {
		return nil, err
	}
	next := *st
	next.UpdatedAt = s.now().UnixMilli()
	if err := s.settings.Upsert(ctx, &next); err != nil {
		return nil, fmt.Errorf("store settings for %s: %w", st.Identity, err)
	}
	return &next, nil
}

// Executions returns the most recent execution records of identity.
func (s *Service) Executions(ctx context.Context, identity string, limit int) ([]*domain.ExecutionRecord, error) {
	if s.executions == nil {
		return []*domain.ExecutionRecord{}, nil
	}
	return s.executions.GetByIdentity(ctx, identity, limit)
}

func validateSettings(st *domain.ProtectionSettings) error {
	switch {
	case st == nil || st.Identity == "":
		return fmt.Errorf("%w: identity is required", storage.ErrInvalidInput)
	case st.MaxSlippageBps < 0 || st.MaxSlippageBps > domain.MaxSlippageBpsLimit:
		return fmt.Errorf("%w: max_slippage_bps must be within [0, %d]", storage.ErrInvalidInput, domain.MaxSlippageBpsLimit)
	case st.MaxRiskScore < 0 || st.MaxRiskScore > 100:
		return fmt.Errorf("%w: max_risk_score must be within [0, 100]", storage.ErrInvalidInput)
	}
	return nil
}
