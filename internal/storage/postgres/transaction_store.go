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

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	id, identity, account_address, input_asset, output_asset, input_amount, output_amount,
	risk_score, risk_level, mev_detected, risk_factors, risk_reasoning, recommended_action,
	risk_source, risk_sandwich, risk_frontrun, risk_volatility,
	selected_route, direct_route, routes, selection_reasoning, potential_savings,
	status, batch_id, proof_hash, simulation_time_ms, selection_time_ms,
	executed_route, used_protected_route, actual_savings, execution_time_ms,
	created_at, completed_at`

// Insert adds a new transaction. Returns ErrDuplicateKey if id or proof_hash exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	factors, err := json.Marshal(nonNilStrings(tx.RiskFactors))
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	routes, err := json.Marshal(tx.Routes)
	if err != nil {
		return fmt.Errorf("marshal routes: %w", err)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29, $30, $31,
			$32, $33
		)
	`

	var executed *string
	if tx.ExecutedRoute != nil {
		v := string(*tx.ExecutedRoute)
		executed = &v
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		tx.ID, tx.Identity, tx.AccountAddress, tx.InputAsset, tx.OutputAsset,
		int64(tx.InputAmount), int64(tx.OutputAmount),
		tx.RiskScore, string(tx.RiskLevel), tx.MevDetected, factors, tx.RiskReasoning,
		string(tx.RecommendedAction),
		string(tx.RiskSource), tx.RiskSubscores.Sandwich, tx.RiskSubscores.Frontrun, tx.RiskSubscores.Volatility,
		string(tx.SelectedRoute), string(tx.DirectRoute), routes, tx.SelectionReasoning, tx.PotentialSavings,
		string(tx.Status), tx.BatchID, tx.ProofHash, tx.SimulationTimeMs, tx.SelectionTimeMs,
		executed, tx.UsedProtectedRoute, tx.ActualSavings, tx.ExecutionTimeMs,
		tx.CreatedAt, tx.CompletedAt,
	)
	observe("insert_transaction", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return tx, nil
}

// GetByIdentity retrieves all transactions of an identity, newest first.
func (s *TransactionStore) GetByIdentity(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE identity = $1
		ORDER BY created_at DESC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("get transactions by identity: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return result, nil
}

// UpdateStatus moves a non-terminal transaction to status.
func (s *TransactionStore) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	query := `
		UPDATE transactions SET status = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrImmutable(ctx, id)
	}
	return nil
}

// AssignBatch records the batch a transaction was admitted to.
func (s *TransactionStore) AssignBatch(ctx context.Context, id, batchID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET batch_id = $2 WHERE id = $1`, id, batchID)
	if err != nil {
		return fmt.Errorf("assign batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Complete writes the completion fields exactly once.
// Of concurrent callers only one matches the non-terminal row; the rest get ErrImmutable.
func (s *TransactionStore) Complete(ctx context.Context, c *domain.Completion) (*domain.Transaction, error) {
	if c == nil || c.TransactionID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		UPDATE transactions SET
			status = 'completed',
			executed_route = $2,
			used_protected_route = $3,
			actual_savings = $4,
			execution_time_ms = $5,
			completed_at = $6
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
		RETURNING ` + transactionColumns

	start := time.Now()
	tx, err := scanTransaction(s.pool.QueryRow(ctx, query,
		c.TransactionID,
		string(c.ExecutedRoute),
		c.UsedProtectedRoute,
		c.ActualSavings,
		c.ExecutionTimeMs,
		c.CompletedAt,
	))
	queryErr := err
	if isNotFoundError(err) {
		queryErr = nil
	}
	observe("complete_transaction", start, queryErr)
	if err != nil {
		if isNotFoundError(err) {
			return nil, s.missOrImmutable(ctx, c.TransactionID)
		}
		return nil, fmt.Errorf("complete transaction: %w", err)
	}
	return tx, nil
}

// missOrImmutable explains why a conditional update matched no row.
func (s *TransactionStore) missOrImmutable(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check transaction exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrImmutable
}

// scanTransaction scans a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                                domain.Transaction
		inputAmount, outputAmount         int64
		riskLevel, action, source, status string
		selected, direct                  string
		factors, routes                   []byte
		executed                          *string
	)

	err := row.Scan(
		&tx.ID, &tx.Identity, &tx.AccountAddress, &tx.InputAsset, &tx.OutputAsset, &inputAmount, &outputAmount,
		&tx.RiskScore, &riskLevel, &tx.MevDetected, &factors, &tx.RiskReasoning, &action,
		&source, &tx.RiskSubscores.Sandwich, &tx.RiskSubscores.Frontrun, &tx.RiskSubscores.Volatility,
		&selected, &direct, &routes, &tx.SelectionReasoning, &tx.PotentialSavings,
		&status, &tx.BatchID, &tx.ProofHash, &tx.SimulationTimeMs, &tx.SelectionTimeMs,
		&executed, &tx.UsedProtectedRoute, &tx.ActualSavings, &tx.ExecutionTimeMs,
		&tx.CreatedAt, &tx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(factors, &tx.RiskFactors); err != nil {
		return nil, fmt.Errorf("unmarshal risk factors: %w", err)
	}
	if err := json.Unmarshal(routes, &tx.Routes); err != nil {
		return nil, fmt.Errorf("unmarshal routes: %w", err)
	}

	tx.InputAmount = uint64(inputAmount)
	tx.OutputAmount = uint64(outputAmount)
	tx.RiskLevel = domain.RiskLevel(riskLevel)
	tx.RecommendedAction = domain.RecommendedAction(action)
	tx.RiskSource = domain.RiskSource(source)
	tx.SelectedRoute = domain.Venue(selected)
	tx.DirectRoute = domain.Venue(direct)
	tx.Status = domain.TransactionStatus(status)
	if executed != nil {
		v := domain.Venue(*executed)
		tx.ExecutedRoute = &v
	}

	return &tx, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
