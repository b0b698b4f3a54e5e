package postgres

import (
	"context"
	"fmt"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// StatsStore implements storage.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *Pool
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(pool *Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatsStore = (*StatsStore)(nil)

// Get retrieves stats of an identity. Returns ErrNotFound if none recorded yet.
func (s *StatsStore) Get(ctx context.Context, identity string) (*domain.IdentityStats, error) {
	query := `
		SELECT identity, total_transactions, total_savings, average_savings,
			total_risk_score, average_risk_score,
			low_risk_count, medium_risk_count, high_risk_count, critical_risk_count,
			attacks_blocked, protected_route_count, direct_route_count, updated_at
		FROM identity_stats
		WHERE identity = $1
	`

	var st domain.IdentityStats
	err := s.pool.QueryRow(ctx, query, identity).Scan(
		&st.Identity,
		&st.TotalTransactions,
		&st.TotalSavings,
		&st.AverageSavings,
		&st.TotalRiskScore,
		&st.AverageRiskScore,
		&st.LowRiskCount,
		&st.MediumRiskCount,
		&st.HighRiskCount,
		&st.CriticalRiskCount,
		&st.AttacksBlocked,
		&st.ProtectedRouteCount,
		&st.DirectRouteCount,
		&st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get identity stats: %w", err)
	}
	return &st, nil
}

// Upsert creates or replaces stats of an identity.
func (s *StatsStore) Upsert(ctx context.Context, st *domain.IdentityStats) error {
	if st == nil || st.Identity == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO identity_stats (
			identity, total_transactions, total_savings, average_savings,
			total_risk_score, average_risk_score,
			low_risk_count, medium_risk_count, high_risk_count, critical_risk_count,
			attacks_blocked, protected_route_count, direct_route_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (identity) DO UPDATE SET
			total_transactions = EXCLUDED.total_transactions,
			total_savings = EXCLUDED.total_savings,
			average_savings = EXCLUDED.average_savings,
			total_risk_score = EXCLUDED.total_risk_score,
			average_risk_score = EXCLUDED.average_risk_score,
			low_risk_count = EXCLUDED.low_risk_count,
			medium_risk_count = EXCLUDED.medium_risk_count,
			high_risk_count = EXCLUDED.high_risk_count,
			critical_risk_count = EXCLUDED.critical_risk_count,
			attacks_blocked = EXCLUDED.attacks_blocked,
			protected_route_count = EXCLUDED.protected_route_count,
			direct_route_count = EXCLUDED.direct_route_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		st.Identity,
		st.TotalTransactions,
		st.TotalSavings,
		st.AverageSavings,
		st.TotalRiskScore,
		st.AverageRiskScore,
		st.LowRiskCount,
		st.MediumRiskCount,
		st.HighRiskCount,
		st.CriticalRiskCount,
		st.AttacksBlocked,
		st.ProtectedRouteCount,
		st.DirectRouteCount,
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert identity stats: %w", err)
	}
	return nil
}
