// Package pipeline orchestrates protection requests end to end.
// Flow: quote routes → score risk → select route → persist → admit to batch,
// then on execute: complete → proof → stats → execution log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"swap-guard/internal/batch"
	"swap-guard/internal/domain"
	"swap-guard/internal/idhash"
	"swap-guard/internal/notify"
	"swap-guard/internal/observability"
	"swap-guard/internal/proof"
	"swap-guard/internal/risk"
	"swap-guard/internal/routing"
	"swap-guard/internal/solana"
	"swap-guard/internal/stats"
	"swap-guard/internal/storage"
)

// ErrProtectionRequired is returned when an unprotected execution is
// requested for a transaction riskier than the identity allows.
var ErrProtectionRequired = errors.New("protected route required for this risk score")

// ExecuteRequest asks to complete a simulated transaction.
type ExecuteRequest struct {
	TransactionID     string `json:"transaction_id"`
	UseProtectedRoute bool   `json:"use_protected_route"`
}

// Service runs the protection pipeline.
type Service struct {
	// Stores
	transactions storage.TransactionStore
	batches      storage.BatchStore
	proofs       storage.ProofStore
	settings     storage.SettingsStore
	executions   storage.ExecutionLogStore

	// Collaborators
	quoter      routing.Quoter
	scorer      risk.Scorer
	coordinator *batch.Coordinator
	aggregator  *stats.Aggregator
	generator   *proof.Generator
	publisher   notify.Publisher

	programID string
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// Options for creating Service.
type Options struct {
	// Required stores
	TransactionStore storage.TransactionStore
	BatchStore       storage.BatchStore
	ProofStore       storage.ProofStore
	StatsStore       storage.StatsStore
	SettingsStore    storage.SettingsStore

	// Optional analytics sink
	ExecutionLogStore storage.ExecutionLogStore

	// Collaborators
	Quoter       routing.Quoter
	Scorer       risk.Scorer // wrapped with the local-rule fallback
	ScoreTimeout time.Duration
	Coordinator  *batch.Coordinator
	Publisher    notify.Publisher // optional

	ProgramID string
	Logger    *log.Logger

	// Now and NewID are overridable in tests.
	Now   func() time.Time
	NewID func() string
}

// New creates a new Service.
func New(opts Options) (*Service, error) {
	if opts.TransactionStore == nil || opts.BatchStore == nil || opts.ProofStore == nil ||
		opts.StatsStore == nil || opts.SettingsStore == nil {
		return nil, fmt.Errorf("pipeline: all stores are required")
	}
	if opts.Quoter == nil {
		return nil, fmt.Errorf("pipeline: quoter is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("pipeline: batch coordinator is required")
	}

	s := &Service{
		transactions: opts.TransactionStore,
		batches:      opts.BatchStore,
		proofs:       opts.ProofStore,
		settings:     opts.SettingsStore,
		executions:   opts.ExecutionLogStore,
		quoter:       opts.Quoter,
		coordinator:  opts.Coordinator,
		aggregator:   stats.NewAggregator(opts.StatsStore),
		generator:    proof.NewGenerator(),
		publisher:    opts.Publisher,
		programID:    opts.ProgramID,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.scorer = risk.WithFallback(opts.Scorer, opts.ScoreTimeout, s.logger)
	if s.programID == "" {
		s.programID = solana.DefaultProgramID
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s, nil
}

// Simulate quotes, scores and selects a route for req, persists the
// transaction and admits it to the pending batch unless the identity has
// batching disabled. The returned transaction has status simulating.
func (s *Service) Simulate(ctx context.Context, req domain.ProtectionRequest) (*domain.Transaction, error) {
	if err := validateRequest(req); err != nil {
		observability.RecordPipelineError("simulate", "invalid_input")
		return nil, err
	}

	settings, err := s.Settings(ctx, req.Identity)
	if err != nil {
		return nil, err
	}

	// Stage 1: route simulation
	s.publishStatus(req.Identity, domain.TxStatusSimulating)
	simStart := time.Now()
	routes, err := s.quoter.Quote(ctx, req)
	if err != nil {
		observability.RecordPipelineError("simulate", "quote")
		return nil, fmt.Errorf("quote routes: %w", err)
	}
	simMs := max(elapsedMs(simStart), slowestQuote(routes))
	observability.RecordStageLatency("simulate", time.Since(simStart).Seconds())

	// Stage 2: risk analysis
	s.publishStatus(req.Identity, domain.TxStatusAnalyzing)
	assessment := risk.Assessment{
		InputAsset:  req.InputAsset,
		OutputAsset: req.OutputAsset,
		InputAmount: req.InputAmount,
		Routes:      routes,
	}
	riskStart := time.Now()
	rr, err := s.scorer.Score(ctx, assessment)
	if err != nil || rr == nil {
		rr = risk.LocalRule(assessment, "scorer error")
	}
	observability.RecordStageLatency("analyze", time.Since(riskStart).Seconds())

	// Stage 3: route selection
	selStart := time.Now()
	sel, err := routing.Select(routes, settings.MaxImpactPct())
	if err != nil {
		observability.RecordPipelineError("simulate", "select")
		return nil, err
	}
	selMs := elapsedMs(selStart)
	observability.RecordStageLatency("select", time.Since(selStart).Seconds())

	// Stage 4: build and persist
	now := s.now()
	id := s.newID()
	tx := &domain.Transaction{
		ID:                 id,
		Identity:           req.Identity,
		InputAsset:         req.InputAsset,
		OutputAsset:        req.OutputAsset,
		InputAmount:        req.InputAmount,
		OutputAmount:       sel.Selected.EstimatedOutput,
		RiskScore:          rr.Score,
		RiskLevel:          domain.RiskLevelFor(rr.Score),
		MevDetected:        domain.IsMevDetected(rr.Score),
		RiskFactors:        rr.Factors,
		RiskReasoning:      rr.Reasoning,
		RecommendedAction:  rr.RecommendedAction,
		RiskSource:         rr.Source,
		RiskSubscores:      rr.Subscores,
		SelectedRoute:      sel.Selected.Venue,
		DirectRoute:        sel.Direct.Venue,
		Routes:             routes,
		SelectionReasoning: sel.Reasoning,
		PotentialSavings:   sel.PotentialSavings,
		Status:             domain.TxStatusSimulating,
		ProofHash: idhash.ComputeProofHash(req.Identity, req.InputAsset, req.OutputAsset,
			req.InputAmount, sel.Selected.EstimatedOutput, now.UnixNano(), id),
		SimulationTimeMs: simMs,
		SelectionTimeMs:  selMs,
		CreatedAt:        now.UnixMilli(),
	}

	if account, err := solana.TransactionAccount(s.programID, req.Identity, id); err == nil {
		tx.AccountAddress = account
	} else {
		s.logger.Printf("derive account for %s: %v", id, err)
	}

	if err := s.transactions.Insert(ctx, tx); err != nil {
		observability.RecordPipelineError("simulate", "persist")
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	// Stage 5: batch admission
	if settings.BatchEnabled {
		batchID, err := s.coordinator.Admit(ctx, domain.BatchMember{
			TransactionID: id,
			Identity:      req.Identity,
			InputAmount:   req.InputAmount,
		})
		if err != nil {
			observability.RecordPipelineError("simulate", "admit")
			s.abandon(ctx, tx)
			return nil, fmt.Errorf("admit %s to batch: %w", id, err)
		}
		if err := s.transactions.AssignBatch(ctx, id, batchID); err != nil {
			observability.RecordPipelineError("simulate", "assign_batch")
			s.abandon(ctx, tx)
			return nil, fmt.Errorf("assign batch %s to %s: %w", batchID, id, err)
		}
		tx.BatchID = &batchID
	}

	observability.RecordSimulated()
	s.logger.Printf("simulated %s for %s: %s risk=%d (%s) batch=%s",
		id, req.Identity, tx.SelectedRoute, tx.RiskScore, tx.RiskSource, derefOr(tx.BatchID, "-"))

	s.publish(req.Identity, domain.Event{Type: domain.EventSimulationComplete, Transaction: tx})
	return tx, nil
}

// Execute completes a simulated transaction exactly once. The protected
// route is the selected one and realizes the potential savings; the direct
// route is the best-output one and realizes none.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*domain.Transaction, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", storage.ErrInvalidInput)
	}

	tx, err := s.transactions.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return nil, fmt.Errorf("transaction %s is %s: %w", tx.ID, tx.Status, storage.ErrImmutable)
	}

	settings, err := s.Settings(ctx, tx.Identity)
	if err != nil {
		return nil, err
	}
	if !req.UseProtectedRoute && tx.RiskScore > settings.MaxRiskScore {
		observability.RecordPipelineError("execute", "protection_required")
		return nil, fmt.Errorf("risk %d exceeds max %d: %w", tx.RiskScore, settings.MaxRiskScore, ErrProtectionRequired)
	}

	executed := tx.DirectRoute
	savings := 0.0
	if req.UseProtectedRoute {
		executed = tx.SelectedRoute
		savings = tx.PotentialSavings
	}

	// Execution time spans the executing write through the completion write,
	// and is never reported below the executed venue's quoted latency.
	start := time.Now()
	s.publishStatus(tx.Identity, domain.TxStatusExecuting)
	if err := s.transactions.UpdateStatus(ctx, tx.ID, domain.TxStatusExecuting); err != nil {
		return nil, fmt.Errorf("mark %s executing: %w", tx.ID, err)
	}

	completed, err := s.transactions.Complete(ctx, &domain.Completion{
		TransactionID:      tx.ID,
		ExecutedRoute:      executed,
		UsedProtectedRoute: req.UseProtectedRoute,
		ActualSavings:      savings,
		ExecutionTimeMs:    max(elapsedMs(start), routeLatency(tx.Routes, executed)),
		CompletedAt:        s.now().UnixMilli(),
	})
	if err != nil {
		// A concurrent Execute won the compare-and-set
		return nil, fmt.Errorf("complete %s: %w", tx.ID, err)
	}
	observability.RecordStageLatency("execute", time.Since(start).Seconds())

	// Everything below runs once per transaction, guarded by Complete
	s.recordProof(ctx, completed)
	s.recordStats(ctx, completed)
	s.recordExecution(ctx, completed)

	observability.RecordCompleted(completed.UsedProtectedRoute)
	s.logger.Printf("executed %s via %s (protected=%v, savings=%.6f)",
		completed.ID, executed, completed.UsedProtectedRoute, completed.ActualSavings)

	s.publish(completed.Identity, domain.Event{Type: domain.EventExecutionComplete, Transaction: completed})
	return completed, nil
}

func (s *Service) recordProof(ctx context.Context, tx *domain.Transaction) {
	p, err := s.generator.Generate(tx)
	if err != nil {
		s.logger.Printf("generate proof for %s: %v", tx.ID, err)
		observability.RecordPipelineError("execute", "proof")
		return
	}
	if err := s.proofs.Insert(ctx, p); err != nil {
		s.logger.Printf("persist proof for %s: %v", tx.ID, err)
		observability.RecordPipelineError("execute", "proof")
	}
}

func (s *Service) recordStats(ctx context.Context, tx *domain.Transaction) {
	_, err := s.aggregator.Record(ctx, stats.Completion{
		Identity:           tx.Identity,
		RiskScore:          tx.RiskScore,
		ActualSavings:      tx.ActualSavings,
		UsedProtectedRoute: tx.UsedProtectedRoute,
		CompletedAt:        derefOr(tx.CompletedAt, int64(0)),
	})
	if err != nil {
		s.logger.Printf("update stats for %s: %v", tx.Identity, err)
		observability.RecordPipelineError("execute", "stats")
	}
}

func (s *Service) recordExecution(ctx context.Context, tx *domain.Transaction) {
	if s.executions == nil {
		return
	}
	rec := &domain.ExecutionRecord{
		TransactionID:      tx.ID,
		Identity:           tx.Identity,
		BatchID:            derefOr(tx.BatchID, ""),
		InputAsset:         tx.InputAsset,
		OutputAsset:        tx.OutputAsset,
		InputAmount:        tx.InputAmount,
		OutputAmount:       tx.OutputAmount,
		ExecutedRoute:      derefOr(tx.ExecutedRoute, tx.SelectedRoute),
		RiskScore:          tx.RiskScore,
		RiskLevel:          tx.RiskLevel,
		RiskSource:         string(tx.RiskSource),
		UsedProtectedRoute: tx.UsedProtectedRoute,
		ActualSavings:      tx.ActualSavings,
		ExecutionTimeMs:    tx.ExecutionTimeMs,
		CompletedAt:        derefOr(tx.CompletedAt, int64(0)),
	}
	if err := s.executions.Insert(ctx, rec); err != nil {
		s.logger.Printf("append execution log for %s: %v", tx.ID, err)
		observability.RecordPipelineError("execute", "execution_log")
	}
}

// abandon marks a persisted transaction failed when it cannot join a batch,
// so no simulating transaction is left without one. The write outlives a
// cancelled request.
func (s *Service) abandon(ctx context.Context, tx *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.transactions.UpdateStatus(ctx, tx.ID, domain.TxStatusFailed); err != nil {
		s.logger.Printf("mark %s failed: %v", tx.ID, err)
		return
	}
	s.publishStatus(tx.Identity, domain.TxStatusFailed)
}

func (s *Service) publishStatus(identity string, status domain.TransactionStatus) {
	s.publish(identity, domain.StatusEvent(status))
}

func (s *Service) publish(identity string, ev domain.Event) {
	if s.publisher != nil {
		s.publisher.Publish(identity, ev)
	}
}

func validateRequest(req domain.ProtectionRequest) error {
	switch {
	case req.Identity == "":
		return fmt.Errorf("%w: identity is required", storage.ErrInvalidInput)
	case req.InputAsset == "" || req.OutputAsset == "":
		return fmt.Errorf("%w: input_asset and output_asset are required", storage.ErrInvalidInput)
	case req.InputAsset == req.OutputAsset:
		return fmt.Errorf("%w: input and output asset must differ", storage.ErrInvalidInput)
	case req.InputAmount == 0:
		return fmt.Errorf("%w: input_amount must be positive", storage.ErrInvalidInput)
	}
	return nil
}

// elapsedMs rounds the time since start up to whole milliseconds. A stage
// that ran reports at least 1ms.
func elapsedMs(start time.Time) int64 {
	d := time.Since(start)
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	return max(ms, 1)
}

// slowestQuote is the latency of the slowest venue quote in routes.
func slowestQuote(routes []domain.Route) int64 {
	var slowest int64
	for _, r := range routes {
		slowest = max(slowest, r.LatencyMs)
	}
	return slowest
}

func routeLatency(routes []domain.Route, venue domain.Venue) int64 {
	for _, r := range routes {
		if r.Venue == venue {
			return r.LatencyMs
		}
	}
	return 0
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
