package postgres

import (
	"context"
	"fmt"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get retrieves settings of an identity. Returns ErrNotFound if never saved.
func (s *SettingsStore) Get(ctx context.Context, identity string) (*domain.ProtectionSettings, error) {
	query := `
		SELECT identity, max_slippage_bps, max_risk_score, batch_enabled, updated_at
		FROM protection_settings
		WHERE identity = $1
	`

	var st domain.ProtectionSettings
	err := s.pool.QueryRow(ctx, query, identity).Scan(
		&st.Identity,
		&st.MaxSlippageBps,
		&st.MaxRiskScore,
		&st.BatchEnabled,
		&st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get protection settings: %w", err)
	}
	return &st, nil
}

// Upsert creates or replaces settings of an identity.
func (s *SettingsStore) Upsert(ctx context.Context, st *domain.ProtectionSettings) error {
	if st == nil || st.Identity == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO protection_settings (identity, max_slippage_bps, max_risk_score, batch_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE SET
			max_slippage_bps = EXCLUDED.max_slippage_bps,
			max_risk_score = EXCLUDED.max_risk_score,
			batch_enabled = EXCLUDED.batch_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		st.Identity,
		st.MaxSlippageBps,
		st.MaxRiskScore,
		st.BatchEnabled,
		st.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("upsert protection settings: %w", err)
	}
	return nil
}
