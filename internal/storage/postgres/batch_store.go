package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// BatchStore implements storage.BatchStore using PostgreSQL.
// Members are stored in batch_members ordered by position.
type BatchStore struct {
	pool *Pool
}

// NewBatchStore creates a new BatchStore.
func NewBatchStore(pool *Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BatchStore = (*BatchStore)(nil)

const batchColumns = `
	id, status, seal_trigger, batch_hash, commit_signature, outcomes, failure_reason,
	created_at, executed_at, completed_at, execution_time_ms`

// Insert adds a new batch with its members. Returns ErrDuplicateKey if id exists.
func (s *BatchStore) Insert(ctx context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	outcomes, err := marshalOutcomes(b.Outcomes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO batches (` + batchColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			b.ID, string(b.Status), sealTriggerValue(b.SealTrigger), b.BatchHash, b.CommitSignature,
			outcomes, b.FailureReason,
			b.CreatedAt, b.ExecutedAt, b.CompletedAt, b.ExecutionTimeMs,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert batch: %w", err)
		}
		return insertMembers(ctx, tx, b)
	})
}

// Update replaces membership, status and lifecycle fields of a non-terminal batch.
func (s *BatchStore) Update(ctx context.Context, b *domain.Batch) (err error) {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("update_batch", start, err) }()

	outcomes, err := marshalOutcomes(b.Outcomes)
	if err != nil {
		return err
	}

	query := `
		UPDATE batches SET
			status = $2,
			seal_trigger = $3,
			batch_hash = $4,
			commit_signature = $5,
			outcomes = $6,
			failure_reason = $7,
			executed_at = $8,
			completed_at = $9,
			execution_time_ms = $10
		WHERE id = $1
	`
	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		// Row lock serializes concurrent updates of one batch
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM batches WHERE id = $1 FOR UPDATE`, b.ID).Scan(&status)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("lock batch: %w", err)
		}
		if domain.BatchStatus(status).IsTerminal() {
			return storage.ErrImmutable
		}

		_, err = tx.Exec(ctx, query,
			b.ID, string(b.Status), sealTriggerValue(b.SealTrigger), b.BatchHash, b.CommitSignature,
			outcomes, b.FailureReason, b.ExecutedAt, b.CompletedAt, b.ExecutionTimeMs,
		)
		if err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM batch_members WHERE batch_id = $1`, b.ID); err != nil {
			return fmt.Errorf("clear batch members: %w", err)
		}
		return insertMembers(ctx, tx, b)
	})
}

// GetByID retrieves a batch by its ID. Returns ErrNotFound if not exists.
func (s *BatchStore) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	b, err := scanBatch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get batch by id: %w", err)
	}

	if err := s.loadMembers(ctx, []*domain.Batch{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// GetByIdentity retrieves batches with a member owned by identity, newest first.
func (s *BatchStore) GetByIdentity(ctx context.Context, identity string) ([]*domain.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE id IN (SELECT batch_id FROM batch_members WHERE identity = $1)
		ORDER BY created_at DESC, id ASC
	`
	return s.queryBatches(ctx, query, identity)
}

// GetByStatus retrieves all batches in a status, oldest first.
func (s *BatchStore) GetByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
	`
	return s.queryBatches(ctx, query, string(status))
}

func (s *BatchStore) queryBatches(ctx context.Context, query string, args ...interface{}) ([]*domain.Batch, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}

	if err := s.loadMembers(ctx, batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// loadMembers fills Members of each batch in admission order.
func (s *BatchStore) loadMembers(ctx context.Context, batches []*domain.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	ids := make([]string, len(batches))
	byID := make(map[string]*domain.Batch, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
		byID[b.ID] = b
	}

	query := `
		SELECT batch_id, transaction_id, identity, input_amount
		FROM batch_members
		WHERE batch_id = ANY($1)
		ORDER BY batch_id, position
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("get batch members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			batchID string
			m       domain.BatchMember
			amount  int64
		)
		if err := rows.Scan(&batchID, &m.TransactionID, &m.Identity, &amount); err != nil {
			return fmt.Errorf("scan batch member row: %w", err)
		}
		m.InputAmount = uint64(amount)
		if b, ok := byID[batchID]; ok {
			b.Members = append(b.Members, m)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate batch member rows: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, b *domain.Batch) error {
	query := `
		INSERT INTO batch_members (batch_id, position, transaction_id, identity, input_amount)
		VALUES ($1, $2, $3, $4, $5)
	`

	for i, m := range b.Members {
		_, err := tx.Exec(ctx, query, b.ID, i, m.TransactionID, m.Identity, int64(m.InputAmount))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert batch member: %w", err)
		}
	}
	return nil
}

// scanBatch scans a single row into a Batch without members.
func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var (
		b       domain.Batch
		status  string
		trigger *string
		outcome []byte
	)

	err := row.Scan(
		&b.ID, &status, &trigger, &b.BatchHash, &b.CommitSignature, &outcome, &b.FailureReason,
		&b.CreatedAt, &b.ExecutedAt, &b.CompletedAt, &b.ExecutionTimeMs,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(outcome, &b.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	if len(b.Outcomes) == 0 {
		b.Outcomes = nil
	}

	b.Status = domain.BatchStatus(status)
	if trigger != nil {
		t := domain.SealTrigger(*trigger)
		b.SealTrigger = &t
	}
	return &b, nil
}

func marshalOutcomes(outcomes []domain.TransactionOutcome) ([]byte, error) {
	if outcomes == nil {
		outcomes = []domain.TransactionOutcome{}
	}
	data, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshal outcomes: %w", err)
	}
	return data, nil
}

func sealTriggerValue(t *domain.SealTrigger) *string {
	if t == nil {
		return nil
	}
	v := string(*t)
	return &v
}
