// Package proof builds and verifies proof-of-route records.
package proof

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"swap-guard/internal/domain"
)

const (
	// MaxDetections caps the attack detection log per proof.
	MaxDetections = 20
	// MaxReasoningLen caps the selection reasoning stored on a proof.
	MaxReasoningLen = 500
	// DetectionThreshold is the risk score above which factors are logged as detections.
	DetectionThreshold = 70
)

var (
	// ErrHashMismatch is returned when a presented hash does not match the stored proof.
	ErrHashMismatch = errors.New("proof hash mismatch")
	// ErrTransactionMismatch is returned when the proof belongs to another transaction.
	ErrTransactionMismatch = errors.New("proof transaction mismatch")
)

// Generator builds proofs from completed transactions.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator using wall-clock time.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate builds the proof for tx. Timings come from the transaction's
// recorded simulation, selection and execution durations.
func (g *Generator) Generate(tx *domain.Transaction) (*domain.ProofOfRoute, error) {
	if tx == nil {
		return nil, fmt.Errorf("generate proof: nil transaction")
	}
	if tx.ProofHash == "" {
		return nil, fmt.Errorf("generate proof for %s: missing proof hash", tx.ID)
	}
	if len(tx.Routes) == 0 {
		return nil, fmt.Errorf("generate proof for %s: no routes", tx.ID)
	}

	nowMs := g.now().UnixMilli()

	// Only the first route quoted by the selected venue is flagged
	routes := make([]domain.ProofRoute, len(tx.Routes))
	marked := false
	for i, r := range tx.Routes {
		sel := !marked && r.Venue == tx.SelectedRoute
		marked = marked || sel
		routes[i] = domain.ProofRoute{Route: r, Selected: sel}
	}

	return &domain.ProofOfRoute{
		ProofHash:          tx.ProofHash,
		TransactionID:      tx.ID,
		Identity:           tx.Identity,
		Routes:             routes,
		SelectedRoute:      tx.SelectedRoute,
		SelectionReasoning: truncate(tx.SelectionReasoning, MaxReasoningLen),
		RiskScore:          tx.RiskScore,
		Detections:         Detections(tx.RiskScore, tx.RiskFactors, tx.RiskSubscores, nowMs),
		Timings: domain.ProofTimings{
			SimulationMs: tx.SimulationTimeMs,
			SelectionMs:  tx.SelectionTimeMs,
			ExecutionMs:  tx.ExecutionTimeMs,
			TotalMs:      tx.SimulationTimeMs + tx.SelectionTimeMs + tx.ExecutionTimeMs,
		},
		CreatedAt: nowMs,
	}, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Detections maps risk factors to attack detections. Nothing is logged
// unless score exceeds DetectionThreshold.
func Detections(score int, factors []string, sub domain.RiskSubscores, detectedAt int64) []domain.Detection {
	if score <= DetectionThreshold {
		return nil
	}
	var out []domain.Detection
	for _, f := range factors {
		if len(out) == MaxDetections {
			break
		}
		attack := Classify(f)
		out = append(out, domain.Detection{
			AttackType:  attack,
			Probability: probability(attack, score, sub),
			Factor:      f,
			DetectedAt:  detectedAt,
		})
	}
	return out
}

// Classify maps a free-text risk factor to an attack type by keyword.
func Classify(factor string) domain.AttackType {
	f := strings.ToLower(factor)
	switch {
	case strings.Contains(f, "sandwich"):
		return domain.AttackSandwich
	case strings.Contains(f, "front"):
		return domain.AttackFrontRunning
	case strings.Contains(f, "back"):
		return domain.AttackBackRunning
	case strings.Contains(f, "arbitrage"):
		return domain.AttackArbitrage
	default:
		return domain.AttackUnclassified
	}
}

func probability(attack domain.AttackType, score int, sub domain.RiskSubscores) int {
	p := score
	switch attack {
	case domain.AttackSandwich:
		p = sub.Sandwich
	case domain.AttackFrontRunning:
		p = sub.Frontrun
	case domain.AttackArbitrage:
		p = sub.Volatility
	}
	if p <= 0 {
		p = score
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Verify checks a presented hash and transaction id against a stored proof.
func Verify(p *domain.ProofOfRoute, hash, transactionID string) error {
	if p == nil {
		return fmt.Errorf("verify proof: nil proof")
	}
	if !strings.EqualFold(p.ProofHash, hash) {
		return ErrHashMismatch
	}
	if p.TransactionID != transactionID {
		return ErrTransactionMismatch
	}
	return nil
}
