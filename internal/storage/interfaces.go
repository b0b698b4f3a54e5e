package storage

import (
	"context"

	"swap-guard/internal/domain"
)

// TransactionStore provides access to transactions storage.
type TransactionStore interface {
	// Insert adds a new transaction. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByIdentity retrieves all transactions of an identity, ordered by created_at DESC.
	GetByIdentity(ctx context.Context, identity string) ([]*domain.Transaction, error)

	// UpdateStatus moves a non-terminal transaction to status.
	// Returns ErrNotFound if not exists, ErrImmutable if already completed or failed.
	UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) error

	// AssignBatch records the batch a transaction was admitted to.
	AssignBatch(ctx context.Context, id, batchID string) error

	// Complete writes the completion fields exactly once and returns the updated record.
	// Returns ErrImmutable if the transaction was already completed.
	Complete(ctx context.Context, c *domain.Completion) (*domain.Transaction, error)
}

// BatchStore provides access to batches storage.
type BatchStore interface {
	// Insert adds a new batch. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, b *domain.Batch) error

	// Update replaces membership, status and lifecycle fields of an existing batch.
	// Returns ErrNotFound if not exists, ErrImmutable if the stored batch is terminal.
	Update(ctx context.Context, b *domain.Batch) error

	// GetByID retrieves a batch by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Batch, error)

	// GetByIdentity retrieves batches with at least one member owned by identity,
	// ordered by created_at DESC.
	GetByIdentity(ctx context.Context, identity string) ([]*domain.Batch, error)

	// GetByStatus retrieves all batches in a status, ordered by created_at ASC.
	GetByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error)
}

// ProofStore provides access to proofs storage. Proofs are insert-only.
type ProofStore interface {
	// Insert adds a new proof. Returns ErrDuplicateKey if proof_hash or transaction_id exists.
	Insert(ctx context.Context, p *domain.ProofOfRoute) error

	// GetByHash retrieves a proof by its content hash. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*domain.ProofOfRoute, error)

	// GetByTransactionID retrieves the proof of a transaction. Returns ErrNotFound if not exists.
	GetByTransactionID(ctx context.Context, txID string) (*domain.ProofOfRoute, error)
}

// StatsStore provides access to identity_stats storage.
type StatsStore interface {
	// Get retrieves stats of an identity. Returns ErrNotFound if none recorded yet.
	Get(ctx context.Context, identity string) (*domain.IdentityStats, error)

	// Upsert creates or replaces stats of an identity.
	Upsert(ctx context.Context, s *domain.IdentityStats) error
}

// SettingsStore provides access to protection_settings storage.
type SettingsStore interface {
	// Get retrieves settings of an identity. Returns ErrNotFound if never saved.
	Get(ctx context.Context, identity string) (*domain.ProtectionSettings, error)

	// Upsert creates or replaces settings of an identity.
	Upsert(ctx context.Context, s *domain.ProtectionSettings) error
}

// ExecutionLogStore provides access to the execution_log analytics table.
type ExecutionLogStore interface {
	// Insert appends a record. Returns ErrDuplicateKey if transaction_id exists.
	Insert(ctx context.Context, r *domain.ExecutionRecord) error

	// GetByIdentity retrieves the most recent records of an identity, ordered by
	// completed_at DESC. limit <= 0 returns all.
	GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.ExecutionRecord, error)
}
