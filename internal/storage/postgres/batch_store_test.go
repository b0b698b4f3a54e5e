package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

func pendingBatch(id string, createdAt int64, members ...domain.BatchMember) *domain.Batch {
	return &domain.Batch{
		ID:        id,
		Members:   members,
		Status:    domain.BatchStatusPending,
		BatchHash: "hash-" + id,
		CreatedAt: createdAt,
	}
}

func TestBatchStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBatchStore(pool)
	ctx := context.Background()

	b := pendingBatch("batch-1", 1000,
		domain.BatchMember{TransactionID: "tx-1", Identity: "alice", InputAmount: 100},
		domain.BatchMember{TransactionID: "tx-2", Identity: "bob", InputAmount: 250},
	)
	require.NoError(t, store.Insert(ctx, b))

	got, err := store.GetByID(ctx, "batch-1")
	require.NoError(t, err)

	assert.Equal(t, b, got)
	assert.Equal(t, 2, got.Count())
	assert.Equal(t, uint64(350), got.TotalValue())

	assert.ErrorIs(t, store.Insert(ctx, b), storage.ErrDuplicateKey)
}

func TestBatchStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewBatchStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchStore_UpdateLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBatchStore(pool)
	ctx := context.Background()

	b := pendingBatch("batch-1", 1000)
	require.NoError(t, store.Insert(ctx, b))

	// Admission adds members in order
	b.Members = []domain.BatchMember{
		{TransactionID: "tx-2", Identity: "bob", InputAmount: 5},
		{TransactionID: "tx-1", Identity: "alice", InputAmount: 7},
	}
	require.NoError(t, store.Update(ctx, b))

	// Seal
	trigger := domain.SealTriggerSize
	b.Status = domain.BatchStatusProcessing
	b.SealTrigger = &trigger
	b.ExecutedAt = ptr(int64(2000))
	b.BatchHash = "sealed-hash"
	require.NoError(t, store.Update(ctx, b))

	// Complete
	b.Status = domain.BatchStatusCompleted
	b.CommitSignature = "sig"
	b.Outcomes = []domain.TransactionOutcome{
		{TransactionID: "tx-2", Success: true},
		{TransactionID: "tx-1", Success: true},
	}
	b.CompletedAt = ptr(int64(2500))
	b.ExecutionTimeMs = ptr(int64(500))
	require.NoError(t, store.Update(ctx, b))

	got, err := store.GetByID(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Equal(t, []string{"tx-2", "tx-1"}, got.TransactionIDs())

	// Terminal batches are immutable
	b.FailureReason = "late"
	assert.ErrorIs(t, store.Update(ctx, b), storage.ErrImmutable)

	assert.ErrorIs(t, store.Update(ctx, pendingBatch("missing", 1)), storage.ErrNotFound)
}

func TestBatchStore_GetByIdentityAndStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBatchStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, pendingBatch("batch-1", 1000,
		domain.BatchMember{TransactionID: "tx-1", Identity: "alice", InputAmount: 1},
	)))
	require.NoError(t, store.Insert(ctx, pendingBatch("batch-2", 2000,
		domain.BatchMember{TransactionID: "tx-2", Identity: "bob", InputAmount: 1},
		domain.BatchMember{TransactionID: "tx-3", Identity: "alice", InputAmount: 1},
	)))
	require.NoError(t, store.Insert(ctx, pendingBatch("batch-3", 3000,
		domain.BatchMember{TransactionID: "tx-4", Identity: "bob", InputAmount: 1},
	)))

	alice, err := store.GetByIdentity(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "batch-2", alice[0].ID)
	assert.Equal(t, "batch-1", alice[1].ID)
	assert.Len(t, alice[0].Members, 2)

	pending, err := store.GetByStatus(ctx, domain.BatchStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "batch-1", pending[0].ID)

	none, err := store.GetByStatus(ctx, domain.BatchStatusFailed)
	require.NoError(t, err)
	assert.Empty(t, none)
}
