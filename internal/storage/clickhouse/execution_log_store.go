package clickhouse

import (
	"context"
	"fmt"
	"time"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// ExecutionLogStore implements storage.ExecutionLogStore using ClickHouse.
// Rows are append-only; transaction_id uniqueness is checked before insert.
type ExecutionLogStore struct {
	conn *Conn
}

// NewExecutionLogStore creates a new ExecutionLogStore.
func NewExecutionLogStore(conn *Conn) *ExecutionLogStore {
	return &ExecutionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExecutionLogStore = (*ExecutionLogStore)(nil)

const executionLogColumns = `
	transaction_id, identity, batch_id, input_asset, output_asset,
	input_amount, output_amount, executed_route, risk_score, risk_level, risk_source,
	used_protected_route, actual_savings, execution_time_ms, completed_at`

// Insert appends a record. Returns ErrDuplicateKey if transaction_id exists.
func (s *ExecutionLogStore) Insert(ctx context.Context, r *domain.ExecutionRecord) (err error) {
	if r == nil || r.TransactionID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("insert_execution", start, err) }()

	exists, err := s.exists(ctx, r.TransactionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO execution_log (`+executionLogColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.TransactionID, r.Identity, r.BatchID, r.InputAsset, r.OutputAsset,
		r.InputAmount, r.OutputAmount, string(r.ExecutedRoute), uint8(r.RiskScore),
		string(r.RiskLevel), r.RiskSource,
		r.UsedProtectedRoute, r.ActualSavings, r.ExecutionTimeMs, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByIdentity retrieves the most recent records of an identity.
// limit <= 0 returns all.
func (s *ExecutionLogStore) GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionLogColumns + `
		FROM execution_log FINAL
		WHERE identity = ?
		ORDER BY completed_at DESC, transaction_id ASC
	`
	args := []interface{}{identity}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by identity: %w", err)
	}
	defer rows.Close()

	return scanExecutionRecords(rows)
}

// exists checks if a record for the transaction exists.
func (s *ExecutionLogStore) exists(ctx context.Context, transactionID string) (bool, error) {
	query := `SELECT count(*) FROM execution_log WHERE transaction_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, transactionID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanExecutionRecords scans multiple rows.
func scanExecutionRecords(rows chRows) ([]*domain.ExecutionRecord, error) {
	records := []*domain.ExecutionRecord{}

	for rows.Next() {
		var r domain.ExecutionRecord
		var route, level string
		var score uint8

		err := rows.Scan(
			&r.TransactionID, &r.Identity, &r.BatchID, &r.InputAsset, &r.OutputAsset,
			&r.InputAmount, &r.OutputAmount, &route, &score, &level, &r.RiskSource,
			&r.UsedProtectedRoute, &r.ActualSavings, &r.ExecutionTimeMs, &r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution log row: %w", err)
		}

		r.ExecutedRoute = domain.Venue(route)
		r.RiskLevel = domain.RiskLevel(level)
		r.RiskScore = int(score)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution log rows: %w", err)
	}

	return records, nil
}
