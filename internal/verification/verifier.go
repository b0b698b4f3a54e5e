// Package verification checks stored proofs of route against the
// transactions they were generated from.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"swap-guard/internal/domain"
	"swap-guard/internal/proof"
	"swap-guard/internal/storage"
)

// FloatTolerance is the maximum absolute difference for float comparisons.
const FloatTolerance = 1e-7

var (
	// ErrTransactionNotFound is returned when the transaction id doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNotCompleted is returned when a transaction has no proof yet.
	ErrNotCompleted = errors.New("transaction not completed")
)

// FieldDivergence records a single field mismatch.
type FieldDivergence struct {
	Field    string      `json:"field"`
	Expected interface{} `json:"expected"` // regenerated from the transaction
	Actual   interface{} `json:"actual"`   // stored proof
}

// VerificationResult contains the result of verifying one proof.
type VerificationResult struct {
	TransactionID string            `json:"transaction_id"`
	ProofHash     string            `json:"proof_hash"`
	Match         bool              `json:"match"`
	Divergences   []FieldDivergence `json:"divergences,omitempty"`
}

// VerificationReport aggregates the results of one identity.
type VerificationReport struct {
	Identity          string               `json:"identity"`
	TotalProofs       int                  `json:"total_proofs"`
	MatchedProofs     int                  `json:"matched_proofs"`
	DivergentProofs   int                  `json:"divergent_proofs"`
	SkippedIncomplete int                  `json:"skipped_incomplete"`
	Results           []VerificationResult `json:"results"`
}

// Verifier checks proof integrity.
type Verifier interface {
	// VerifyTransaction compares the stored proof of txID with one rebuilt from the transaction.
	VerifyTransaction(ctx context.Context, txID string) (*VerificationResult, error)

	// VerifyIdentity verifies every completed transaction of identity.
	VerifyIdentity(ctx context.Context, identity string) (*VerificationReport, error)
}

// ProofVerifier implements Verifier over the transaction and proof stores.
type ProofVerifier struct {
	transactionStore storage.TransactionStore
	proofStore       storage.ProofStore
	generator        *proof.Generator
}

// NewProofVerifier creates a new ProofVerifier.
func NewProofVerifier(txStore storage.TransactionStore, proofStore storage.ProofStore) *ProofVerifier {
	return &ProofVerifier{
		transactionStore: txStore,
		proofStore:       proofStore,
		generator:        proof.NewGenerator(),
	}
}

// VerifyTransaction verifies the proof of a single completed transaction.
// A completed transaction without a stored proof is reported as a divergence.
func (v *ProofVerifier) VerifyTransaction(ctx context.Context, txID string) (*VerificationResult, error) {
	tx, err := v.transactionStore.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return v.verify(ctx, tx)
}

// VerifyIdentity verifies all completed transactions of identity.
// Transactions still in flight are counted in SkippedIncomplete.
func (v *ProofVerifier) VerifyIdentity(ctx context.Context, identity string) (*VerificationReport, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", storage.ErrInvalidInput)
	}

	txs, err := v.transactionStore.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		Identity: identity,
		Results:  make([]VerificationResult, 0, len(txs)),
	}

	for _, tx := range txs {
		if tx.Status != domain.TxStatusCompleted {
			report.SkippedIncomplete++
			continue
		}

		report.TotalProofs++
		result, err := v.verify(ctx, tx)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				TransactionID: tx.ID,
				ProofHash:     tx.ProofHash,
				Match:         false,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentProofs++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedProofs++
		} else {
			report.DivergentProofs++
		}
	}

	return report, nil
}

func (v *ProofVerifier) verify(ctx context.Context, tx *domain.Transaction) (*VerificationResult, error) {
	if tx.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, tx.ID, tx.Status)
	}

	stored, err := v.proofStore.GetByTransactionID(ctx, tx.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &VerificationResult{
				TransactionID: tx.ID,
				ProofHash:     tx.ProofHash,
				Match:         false,
				Divergences: []FieldDivergence{
					{Field: "Proof", Expected: tx.ProofHash, Actual: nil},
				},
			}, nil
		}
		return nil, err
	}

	regenerated, err := v.generator.Generate(tx)
	if err != nil {
		return nil, err
	}

	divergences := CompareProofs(regenerated, stored)
	return &VerificationResult{
		TransactionID: tx.ID,
		ProofHash:     stored.ProofHash,
		Match:         len(divergences) == 0,
		Divergences:   divergences,
	}, nil
}

// CompareProofs compares two proofs field by field. CreatedAt and the
// detection timestamps are ignored since they record when a proof was built.
func CompareProofs(expected, actual *domain.ProofOfRoute) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, e, a interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: e, Actual: a})
	}

	if expected.ProofHash != actual.ProofHash {
		add("ProofHash", expected.ProofHash, actual.ProofHash)
	}
	if expected.TransactionID != actual.TransactionID {
		add("TransactionID", expected.TransactionID, actual.TransactionID)
	}
	if expected.Identity != actual.Identity {
		add("Identity", expected.Identity, actual.Identity)
	}
	if expected.SelectedRoute != actual.SelectedRoute {
		add("SelectedRoute", expected.SelectedRoute, actual.SelectedRoute)
	}
	if expected.SelectionReasoning != actual.SelectionReasoning {
		add("SelectionReasoning", expected.SelectionReasoning, actual.SelectionReasoning)
	}
	if expected.RiskScore != actual.RiskScore {
		add("RiskScore", expected.RiskScore, actual.RiskScore)
	}

	divergences = append(divergences, compareRoutes(expected.Routes, actual.Routes)...)

	if n := selectedCount(actual.Routes); n != 1 {
		add("Routes.Selected", 1, n)
	}

	if len(expected.Detections) != len(actual.Detections) {
		add("Detections", len(expected.Detections), len(actual.Detections))
	} else {
		for i := range expected.Detections {
			e, a := expected.Detections[i], actual.Detections[i]
			if e.AttackType != a.AttackType || e.Probability != a.Probability || e.Factor != a.Factor {
				add(fmt.Sprintf("Detections[%d]", i),
					fmt.Sprintf("%s/%d/%s", e.AttackType, e.Probability, e.Factor),
					fmt.Sprintf("%s/%d/%s", a.AttackType, a.Probability, a.Factor))
			}
		}
	}

	if expected.Timings != actual.Timings {
		add("Timings", expected.Timings, actual.Timings)
	}
	if t := actual.Timings; t.TotalMs != t.SimulationMs+t.SelectionMs+t.ExecutionMs {
		add("Timings.TotalMs", t.SimulationMs+t.SelectionMs+t.ExecutionMs, t.TotalMs)
	}

	return divergences
}

func compareRoutes(expected, actual []domain.ProofRoute) []FieldDivergence {
	if len(expected) != len(actual) {
		return []FieldDivergence{{Field: "Routes", Expected: len(expected), Actual: len(actual)}}
	}

	var divergences []FieldDivergence
	for i := range expected {
		e, a := expected[i], actual[i]
		prefix := fmt.Sprintf("Routes[%d].", i)
		if e.Venue != a.Venue {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Venue", Expected: e.Venue, Actual: a.Venue})
		}
		if e.EstimatedOutput != a.EstimatedOutput {
			divergences = append(divergences, FieldDivergence{Field: prefix + "EstimatedOutput", Expected: e.EstimatedOutput, Actual: a.EstimatedOutput})
		}
		if !floatEquals(e.PriceImpactPct, a.PriceImpactPct) {
			divergences = append(divergences, FieldDivergence{Field: prefix + "PriceImpactPct", Expected: e.PriceImpactPct, Actual: a.PriceImpactPct})
		}
		if e.RiskScore != a.RiskScore {
			divergences = append(divergences, FieldDivergence{Field: prefix + "RiskScore", Expected: e.RiskScore, Actual: a.RiskScore})
		}
		if e.LiquidityDepth != a.LiquidityDepth {
			divergences = append(divergences, FieldDivergence{Field: prefix + "LiquidityDepth", Expected: e.LiquidityDepth, Actual: a.LiquidityDepth})
		}
		if e.LatencyMs != a.LatencyMs {
			divergences = append(divergences, FieldDivergence{Field: prefix + "LatencyMs", Expected: e.LatencyMs, Actual: a.LatencyMs})
		}
		if e.Selected != a.Selected {
			divergences = append(divergences, FieldDivergence{Field: prefix + "Selected", Expected: e.Selected, Actual: a.Selected})
		}
	}
	return divergences
}

func selectedCount(routes []domain.ProofRoute) int {
	n := 0
	for _, r := range routes {
		if r.Selected {
			n++
		}
	}
	return n
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
