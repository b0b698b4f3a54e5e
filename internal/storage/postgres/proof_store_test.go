package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

func testProof(hash, txID string) *domain.ProofOfRoute {
	return &domain.ProofOfRoute{
		ProofHash:     hash,
		TransactionID: txID,
		Identity:      "alice",
		Routes: []domain.ProofRoute{
			{Route: domain.Route{Venue: domain.VenueJupiter, EstimatedOutput: 100, RiskScore: 80}},
			{Route: domain.Route{Venue: domain.VenueOrca, EstimatedOutput: 99, RiskScore: 20}, Selected: true},
		},
		SelectedRoute:      domain.VenueOrca,
		SelectionReasoning: "lowest risk",
		RiskScore:          82,
		Detections: []domain.Detection{
			{AttackType: domain.AttackSandwich, Probability: 88, Factor: "sandwich bots", DetectedAt: 1000},
		},
		Timings:   domain.ProofTimings{SimulationMs: 10, SelectionMs: 1, ExecutionMs: 4, TotalMs: 15},
		CreatedAt: 1000,
	}
}

func TestProofStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProofStore(pool)
	ctx := context.Background()

	p := testProof("hash-1", "tx-1")
	require.NoError(t, store.Insert(ctx, p))

	byHash, err := store.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, p, byHash)

	byTx, err := store.GetByTransactionID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, p, byTx)
}

func TestProofStore_InsertOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProofStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testProof("hash-1", "tx-1")))

	// Same hash, and a second proof for the same transaction
	assert.ErrorIs(t, store.Insert(ctx, testProof("hash-1", "tx-2")), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, testProof("hash-2", "tx-1")), storage.ErrDuplicateKey)
}

func TestProofStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProofStore(pool)
	ctx := context.Background()

	_, err := store.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetByTransactionID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
