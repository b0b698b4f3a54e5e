// Package settlement commits sealed batches to the chain.
package settlement

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"swap-guard/internal/batch"
	"swap-guard/internal/domain"
	"swap-guard/internal/solana"
)

// commitBatchMethod is the settlement gateway's JSON-RPC method.
const commitBatchMethod = "commitBatch"

// RPCCommitter submits batches through a JSON-RPC settlement gateway.
type RPCCommitter struct {
	client    solana.RPCClient
	programID string
}

// NewRPCCommitter creates a committer that records batches under programID.
func NewRPCCommitter(client solana.RPCClient, programID string) *RPCCommitter {
	if programID == "" {
		programID = solana.DefaultProgramID
	}
	return &RPCCommitter{client: client, programID: programID}
}

type commitBatchParams struct {
	BatchID        string   `json:"batch_id"`
	ProgramID      string   `json:"program_id"`
	TransactionIDs []string `json:"transaction_ids"`
}

type commitBatchResult struct {
	Success   bool                        `json:"success"`
	Signature string                      `json:"signature"`
	Outcomes  []domain.TransactionOutcome `json:"outcomes"`
}

// Commit sends the batch and validates the returned signature.
func (c *RPCCommitter) Commit(ctx context.Context, batchID string, txIDs []string) (*domain.CommitResult, error) {
	params := []interface{}{commitBatchParams{
		BatchID:        batchID,
		ProgramID:      c.programID,
		TransactionIDs: txIDs,
	}}

	var res commitBatchResult
	if err := c.client.Call(ctx, commitBatchMethod, params, &res); err != nil {
		return nil, fmt.Errorf("commit batch %s: %w", batchID, err)
	}

	if res.Success {
		if sig, err := base58.Decode(res.Signature); err != nil || len(sig) != 64 {
			return nil, fmt.Errorf("commit batch %s: malformed signature %q", batchID, res.Signature)
		}
	}

	return &domain.CommitResult{
		Success:   res.Success,
		Signature: res.Signature,
		Outcomes:  res.Outcomes,
	}, nil
}

// StubCommitter settles batches locally with a deterministic signature.
// It stands in for the gateway in development and tests.
type StubCommitter struct {
	mu      sync.Mutex
	latency time.Duration
	fail    bool
	commits map[string]int
}

// NewStubCommitter creates a stub that waits latency before answering.
func NewStubCommitter(latency time.Duration) *StubCommitter {
	return &StubCommitter{latency: latency, commits: make(map[string]int)}
}

// SetFail makes subsequent commits report failure.
func (s *StubCommitter) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Commits returns how many times batchID was committed.
func (s *StubCommitter) Commits(batchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[batchID]
}

// Commit waits the configured latency, honouring ctx.
func (s *StubCommitter) Commit(ctx context.Context, batchID string, txIDs []string) (*domain.CommitResult, error) {
	s.mu.Lock()
	s.commits[batchID]++
	fail := s.fail
	s.mu.Unlock()

	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	outcomes := make([]domain.TransactionOutcome, len(txIDs))
	for i, id := range txIDs {
		outcomes[i] = domain.TransactionOutcome{TransactionID: id, Success: !fail}
		if fail {
			outcomes[i].Error = "stub settlement failure"
		}
	}
	if fail {
		return &domain.CommitResult{Success: false, Outcomes: outcomes}, nil
	}

	return &domain.CommitResult{
		Success:   true,
		Signature: StubSignature(batchID, txIDs),
		Outcomes:  outcomes,
	}, nil
}

// StubSignature derives a 64-byte base58 signature from the batch contents.
func StubSignature(batchID string, txIDs []string) string {
	first := sha256.Sum256([]byte(batchID + "|" + strings.Join(txIDs, ",")))
	second := sha256.Sum256(first[:])
	return base58.Encode(append(first[:], second[:]...))
}

var (
	_ batch.Committer = (*RPCCommitter)(nil)
	_ batch.Committer = (*StubCommitter)(nil)
)
