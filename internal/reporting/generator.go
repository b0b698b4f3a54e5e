package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"swap-guard/internal/domain"
	"swap-guard/internal/stats"
	"swap-guard/internal/storage"
	"swap-guard/internal/verification"
)

// riskLevels in severity order.
var riskLevels = []domain.RiskLevel{
	domain.RiskLevelLow,
	domain.RiskLevelMedium,
	domain.RiskLevelHigh,
	domain.RiskLevelCritical,
}

// Generator produces reports from stored data.
type Generator struct {
	transactionStore storage.TransactionStore
	batchStore       storage.BatchStore
	aggregator       *stats.Aggregator
	executionStore   storage.ExecutionLogStore // optional
	verifier         verification.Verifier     // optional
	now              func() time.Time          // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	txStore storage.TransactionStore,
	batchStore storage.BatchStore,
	statsStore storage.StatsStore,
) *Generator {
	return &Generator{
		transactionStore: txStore,
		batchStore:       batchStore,
		aggregator:       stats.NewAggregator(statsStore),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithExecutionLog adds the latency section from the execution log.
func (g *Generator) WithExecutionLog(store storage.ExecutionLogStore) *Generator {
	g.executionStore = store
	return g
}

// WithVerifier adds the proof integrity section.
func (g *Generator) WithVerifier(v verification.Verifier) *Generator {
	g.verifier = v
	return g
}

// Generate produces the report of identity.
func (g *Generator) Generate(ctx context.Context, identity string) (*Report, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", storage.ErrInvalidInput)
	}

	txs, err := g.transactionStore.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	batches, err := g.batchStore.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}
	st, err := g.aggregator.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	report := &Report{
		GeneratedAt:      g.now(),
		Identity:         identity,
		Summary:          summarize(st, txs),
		Savings:          computeDistribution(completedSavings(txs)),
		RiskDistribution: riskDistribution(txs),
		Venues:           venueBreakdown(txs),
		Batches:          batchRows(batches),
		Transactions:     transactionRows(txs),
	}

	if g.executionStore != nil {
		records, err := g.executionStore.GetByIdentity(ctx, identity, 0)
		if err != nil {
			return nil, fmt.Errorf("load execution log: %w", err)
		}
		latencies := make([]float64, len(records))
		for i, r := range records {
			latencies[i] = float64(r.ExecutionTimeMs)
		}
		report.Latency = computeDistribution(latencies)
	}

	if g.verifier != nil {
		vr, err := g.verifier.VerifyIdentity(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("verify proofs: %w", err)
		}
		report.Integrity = integritySection(vr)
	}

	return report, nil
}

func summarize(st *domain.IdentityStats, txs []*domain.Transaction) Summary {
	s := Summary{
		TotalTransactions:   st.TotalTransactions,
		TotalSavings:        st.TotalSavings,
		AverageSavings:      st.AverageSavings,
		AverageRiskScore:    st.AverageRiskScore,
		AttacksBlocked:      st.AttacksBlocked,
		ProtectedRouteCount: st.ProtectedRouteCount,
		DirectRouteCount:    st.DirectRouteCount,
	}
	for _, tx := range txs {
		if tx.Status == domain.TxStatusCompleted {
			s.CompletedCount++
		} else if !tx.Status.IsTerminal() {
			s.PendingCount++
		}
	}
	return s
}

func completedSavings(txs []*domain.Transaction) []float64 {
	var out []float64
	for _, tx := range txs {
		if tx.Status == domain.TxStatusCompleted {
			out = append(out, tx.ActualSavings)
		}
	}
	return out
}

func riskDistribution(txs []*domain.Transaction) []RiskLevelRow {
	counts := make(map[domain.RiskLevel]int)
	for _, tx := range txs {
		counts[tx.RiskLevel]++
	}
	rows := make([]RiskLevelRow, 0, len(riskLevels))
	for _, level := range riskLevels {
		row := RiskLevelRow{Level: string(level), Count: counts[level]}
		if len(txs) > 0 {
			row.Pct = float64(row.Count) / float64(len(txs)) * 100
		}
		rows = append(rows, row)
	}
	return rows
}

func venueBreakdown(txs []*domain.Transaction) []VenueRow {
	byVenue := make(map[domain.Venue]*VenueRow)
	execTime := make(map[domain.Venue]int64)
	for _, tx := range txs {
		if tx.Status != domain.TxStatusCompleted || tx.ExecutedRoute == nil {
			continue
		}
		v := *tx.ExecutedRoute
		row, ok := byVenue[v]
		if !ok {
			row = &VenueRow{Venue: string(v)}
			byVenue[v] = row
		}
		row.Executions++
		if tx.UsedProtectedRoute {
			row.ProtectedCount++
		}
		row.TotalSavings += tx.ActualSavings
		execTime[v] += tx.ExecutionTimeMs
	}

	rows := make([]VenueRow, 0, len(byVenue))
	for v, row := range byVenue {
		row.AvgExecutionTimeMs = float64(execTime[v]) / float64(row.Executions)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Venue < rows[j].Venue })
	return rows
}

func batchRows(batches []*domain.Batch) []BatchRow {
	rows := make([]BatchRow, 0, len(batches))
	for _, b := range batches {
		row := BatchRow{
			BatchID:       b.ID,
			Status:        string(b.Status),
			Members:       b.Count(),
			TotalValue:    b.TotalValue(),
			FailureReason: b.FailureReason,
			CreatedAt:     b.CreatedAt,
		}
		if b.SealTrigger != nil {
			row.SealTrigger = string(*b.SealTrigger)
		}
		if b.ExecutionTimeMs != nil {
			row.ExecutionTimeMs = *b.ExecutionTimeMs
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt > rows[j].CreatedAt
		}
		return rows[i].BatchID < rows[j].BatchID
	})
	return rows
}

func transactionRows(txs []*domain.Transaction) []TransactionRow {
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row := TransactionRow{
			TransactionID: tx.ID,
			CreatedAt:     tx.CreatedAt,
			Pair:          tx.InputAsset + "/" + tx.OutputAsset,
			InputAmount:   tx.InputAmount,
			RiskScore:     tx.RiskScore,
			RiskLevel:     string(tx.RiskLevel),
			SelectedRoute: string(tx.SelectedRoute),
			Status:        string(tx.Status),
			Protected:     tx.UsedProtectedRoute,
			ActualSavings: tx.ActualSavings,
			ProofHash:     tx.ProofHash,
		}
		if tx.ExecutedRoute != nil {
			row.ExecutedRoute = string(*tx.ExecutedRoute)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt > rows[j].CreatedAt
		}
		return rows[i].TransactionID < rows[j].TransactionID
	})
	return rows
}

func integritySection(vr *verification.VerificationReport) *Integrity {
	in := &Integrity{
		ProofsChecked:     vr.TotalProofs,
		Matched:           vr.MatchedProofs,
		Divergent:         vr.DivergentProofs,
		SkippedIncomplete: vr.SkippedIncomplete,
	}
	for _, res := range vr.Results {
		if res.Match {
			continue
		}
		for _, d := range res.Divergences {
			in.Errors = append(in.Errors, fmt.Sprintf("%s: %s expected %v, got %v",
				res.TransactionID, d.Field, d.Expected, d.Actual))
		}
	}
	sort.Strings(in.Errors)
	return in
}
