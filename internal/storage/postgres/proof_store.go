package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// ProofStore implements storage.ProofStore using PostgreSQL.
// This is an insert-only store.
type ProofStore struct {
	pool *Pool
}

// NewProofStore creates a new ProofStore.
func NewProofStore(pool *Pool) *ProofStore {
	return &ProofStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProofStore = (*ProofStore)(nil)

const proofColumns = `
	proof_hash, transaction_id, identity, routes, selected_route, selection_reasoning,
	risk_score, detections, simulation_ms, selection_ms, execution_ms, total_ms, created_at`

// Insert adds a new proof. Returns ErrDuplicateKey if proof_hash or transaction_id exists.
func (s *ProofStore) Insert(ctx context.Context, p *domain.ProofOfRoute) error {
	routes, err := json.Marshal(p.Routes)
	if err != nil {
		return fmt.Errorf("marshal proof routes: %w", err)
	}
	detections := p.Detections
	if detections == nil {
		detections = []domain.Detection{}
	}
	det, err := json.Marshal(detections)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	query := `
		INSERT INTO proofs (` + proofColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.pool.Exec(ctx, query,
		p.ProofHash,
		p.TransactionID,
		p.Identity,
		routes,
		string(p.SelectedRoute),
		p.SelectionReasoning,
		p.RiskScore,
		det,
		p.Timings.SimulationMs,
		p.Timings.SelectionMs,
		p.Timings.ExecutionMs,
		p.Timings.TotalMs,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

// GetByHash retrieves a proof by its content hash. Returns ErrNotFound if not exists.
func (s *ProofStore) GetByHash(ctx context.Context, hash string) (*domain.ProofOfRoute, error) {
	query := `SELECT ` + proofColumns + ` FROM proofs WHERE proof_hash = $1`

	p, err := scanProof(s.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proof by hash: %w", err)
	}
	return p, nil
}

// GetByTransactionID retrieves the proof of a transaction. Returns ErrNotFound if not exists.
func (s *ProofStore) GetByTransactionID(ctx context.Context, txID string) (*domain.ProofOfRoute, error) {
	query := `SELECT ` + proofColumns + ` FROM proofs WHERE transaction_id = $1`

	p, err := scanProof(s.pool.QueryRow(ctx, query, txID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proof by transaction id: %w", err)
	}
	return p, nil
}

// scanProof scans a single row into a ProofOfRoute.
func scanProof(row pgx.Row) (*domain.ProofOfRoute, error) {
	var (
		p          domain.ProofOfRoute
		selected   string
		routes     []byte
		detections []byte
	)

	err := row.Scan(
		&p.ProofHash,
		&p.TransactionID,
		&p.Identity,
		&routes,
		&selected,
		&p.SelectionReasoning,
		&p.RiskScore,
		&detections,
		&p.Timings.SimulationMs,
		&p.Timings.SelectionMs,
		&p.Timings.ExecutionMs,
		&p.Timings.TotalMs,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(routes, &p.Routes); err != nil {
		return nil, fmt.Errorf("unmarshal proof routes: %w", err)
	}
	if err := json.Unmarshal(detections, &p.Detections); err != nil {
		return nil, fmt.Errorf("unmarshal detections: %w", err)
	}
	p.SelectedRoute = domain.Venue(selected)

	return &p, nil
}
