// Package stats maintains per-identity protection statistics.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// Completion is the part of a completed transaction that feeds statistics.
type Completion struct {
	Identity           string
	RiskScore          int
	ActualSavings      float64
	UsedProtectedRoute bool
	CompletedAt        int64 // ms
}

// Apply folds one completion into prev and returns the new stats.
// prev may be nil for an identity without history. prev is not modified.
func Apply(prev *domain.IdentityStats, c Completion) *domain.IdentityStats {
	next := domain.IdentityStats{Identity: c.Identity}
	if prev != nil {
		next = *prev
	}

	next.TotalTransactions++
	next.TotalSavings += c.ActualSavings
	next.TotalRiskScore += int64(c.RiskScore)
	next.AverageSavings = next.TotalSavings / float64(next.TotalTransactions)
	next.AverageRiskScore = float64(next.TotalRiskScore) / float64(next.TotalTransactions)

	switch domain.RiskLevelFor(c.RiskScore) {
	case domain.RiskLevelLow:
		next.LowRiskCount++
	case domain.RiskLevelMedium:
		next.MediumRiskCount++
	case domain.RiskLevelHigh:
		next.HighRiskCount++
	default:
		next.CriticalRiskCount++
	}

	if domain.IsMevDetected(c.RiskScore) {
		next.AttacksBlocked++
	}

	if c.UsedProtectedRoute {
		next.ProtectedRouteCount++
	} else {
		next.DirectRouteCount++
	}

	// UpdatedAt is the latest completion seen, regardless of arrival order
	if c.CompletedAt > next.UpdatedAt {
		next.UpdatedAt = c.CompletedAt
	}

	return &next
}

// Aggregator applies completions to the stats store.
// Read-apply-write is serialized within the process.
type Aggregator struct {
	store storage.StatsStore
	mu    sync.Mutex
}

// NewAggregator creates a new stats aggregator.
func NewAggregator(store storage.StatsStore) *Aggregator {
	return &Aggregator{store: store}
}

// Record applies c to the stored stats of c.Identity.
func (a *Aggregator) Record(ctx context.Context, c Completion) (*domain.IdentityStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, err := a.store.Get(ctx, c.Identity)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load stats for %s: %w", c.Identity, err)
	}

	next := Apply(prev, c)
	if err := a.store.Upsert(ctx, next); err != nil {
		return nil, fmt.Errorf("store stats for %s: %w", c.Identity, err)
	}
	return next, nil
}

// Get returns stats for identity, or zeroed stats if none exist yet.
func (a *Aggregator) Get(ctx context.Context, identity string) (*domain.IdentityStats, error) {
	s, err := a.store.Get(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.IdentityStats{Identity: identity}, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
