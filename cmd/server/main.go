// Package main runs the protection server: HTTP API, websocket event feed,
// batch coordinator and settlement committer in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swap-guard/internal/api"
	"swap-guard/internal/batch"
	"swap-guard/internal/config"
	"swap-guard/internal/notify"
	"swap-guard/internal/pipeline"
	"swap-guard/internal/risk"
	"swap-guard/internal/routing"
	"swap-guard/internal/settlement"
	"swap-guard/internal/solana"
	"swap-guard/internal/storage"
	chstore "swap-guard/internal/storage/clickhouse"
	"swap-guard/internal/storage/memory"
	"swap-guard/internal/storage/migrations"
	pgstore "swap-guard/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	transactionStore storage.TransactionStore
	batchStore       storage.BatchStore
	proofStore       storage.ProofStore
	statsStore       storage.StatsStore
	settingsStore    storage.SettingsStore
	executionStore   storage.ExecutionLogStore
}

// overrides are flag values applied on top of the config file.
type overrides struct {
	listen            string
	riskEndpoint      string
	riskAPIKey        string
	rpcEndpoint       string
	programID         string
	useStubSettlement bool
	batchSize         int
	batchWindow       time.Duration
	tracing           bool
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("SWAP_GUARD_CONFIG"), "Optional YAML or TOML config file")
	listen := flag.String("listen", os.Getenv("LISTEN_ADDR"), "HTTP listen address (overrides config)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional execution log)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	pgMaxConns := flag.Int("pg-max-conns", 20, "Maximum PostgreSQL connections")
	riskEndpoint := flag.String("risk-endpoint", os.Getenv("RISK_ENDPOINT"), "Risk model HTTP endpoint (empty uses the local rule)")
	riskAPIKey := flag.String("risk-api-key", os.Getenv("RISK_API_KEY"), "Risk model API key")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Settlement JSON-RPC endpoint")
	programID := flag.String("program-id", os.Getenv("PROGRAM_ID"), "Protection program ID")
	useStub := flag.Bool("use-stub-settlement", false, "Commit batches with the in-process stub")
	batchSize := flag.Int("batch-size", 0, "Batch size threshold (overrides config)")
	batchWindow := flag.Duration("batch-window", 0, "Batch time threshold (overrides config)")
	tracing := flag.Bool("tracing", false, "Instrument inbound and outbound HTTP with OpenTelemetry")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
		logger.Printf("Loaded config from %s", *configPath)
	}
	applyOverrides(&cfg, overrides{
		listen:            *listen,
		riskEndpoint:      *riskEndpoint,
		riskAPIKey:        *riskAPIKey,
		rpcEndpoint:       *rpcEndpoint,
		programID:         *programID,
		useStubSettlement: *useStub,
		batchSize:         *batchSize,
		batchWindow:       *batchWindow,
		tracing:           *tracing,
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if !cfg.Settlement.UseStub && cfg.Settlement.RPCURL == "" {
		logger.Fatal("--rpc-endpoint is required (use --use-stub-settlement for the stub committer)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, int32(*pgMaxConns), logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	hub := notify.NewHub(log.New(os.Stdout, "[notify] ", log.LstdFlags|log.Lshortfile))

	coordinator, err := batch.NewCoordinator(batch.Options{
		Config:    cfg.BatchSettings(),
		Store:     stores.batchStore,
		Committer: createCommitter(cfg.Settlement, cfg.Observability.Tracing, logger),
		Publisher: hub,
		Logger:    log.New(os.Stdout, "[batch] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create batch coordinator: %v", err)
	}

	quoter, err := routing.NewSimulator(cfg.Simulator.Seed, cfg.Simulator.Profiles)
	if err != nil {
		logger.Fatalf("Failed to create route simulator: %v", err)
	}

	svc, err := pipeline.New(pipeline.Options{
		TransactionStore:  stores.transactionStore,
		BatchStore:        stores.batchStore,
		ProofStore:        stores.proofStore,
		StatsStore:        stores.statsStore,
		SettingsStore:     stores.settingsStore,
		ExecutionLogStore: stores.executionStore,
		Quoter:            quoter,
		Scorer:            createScorer(cfg.Risk, cfg.Observability.Tracing, logger),
		ScoreTimeout:      cfg.Risk.Timeout.Duration,
		Coordinator:       coordinator,
		Publisher:         hub,
		ProgramID:         cfg.Settlement.ProgramID,
		Logger:            log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create pipeline: %v", err)
	}

	apiServer := api.New(api.Options{
		Service: svc,
		Hub:     hub,
		RateLimit: api.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	})
	handler := apiServer.Handler()
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(handler, "swap-guard")
		logger.Println("Request tracing enabled")
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		apiServer.SetReady(false)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s (batch size=%d window=%v)",
			cfg.Listen, cfg.Batch.SizeThreshold, cfg.Batch.TimeThreshold.Duration)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	// Seal the pending batch and wait for in-flight commits
	if err := coordinator.Close(shutdownCtx); err != nil {
		logger.Printf("Batch coordinator shutdown: %v", err)
	}
	close(done)

	logger.Println("Shutdown complete")
}

// applyOverrides copies non-empty flag values into cfg.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	if o.riskEndpoint != "" {
		cfg.Risk.Endpoint = o.riskEndpoint
	}
	if o.riskAPIKey != "" {
		cfg.Risk.APIKey = o.riskAPIKey
	}
	if o.rpcEndpoint != "" {
		cfg.Settlement.RPCURL = o.rpcEndpoint
	}
	if o.programID != "" {
		cfg.Settlement.ProgramID = o.programID
	}
	if o.useStubSettlement {
		cfg.Settlement.UseStub = true
	}
	if o.batchSize > 0 {
		cfg.Batch.SizeThreshold = o.batchSize
	}
	if o.batchWindow > 0 {
		cfg.Batch.TimeThreshold.Duration = o.batchWindow
	}
	if o.tracing {
		cfg.Observability.Tracing = true
	}
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, maxConns int32, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			transactionStore: memory.NewTransactionStore(),
			batchStore:       memory.NewBatchStore(),
			proofStore:       memory.NewProofStore(),
			statsStore:       memory.NewStatsStore(),
			settingsStore:    memory.NewSettingsStore(),
			executionStore:   memory.NewExecutionLogStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN,
		pgstore.WithMaxConns(maxConns),
		pgstore.WithMaxConnIdleTime(5*time.Minute),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if len(applied) > 0 {
		logger.Printf("Applied postgres migrations: %s", strings.Join(applied, ", "))
	}

	stores := &allStores{
		transactionStore: pgstore.NewTransactionStore(pool),
		batchStore:       pgstore.NewBatchStore(pool),
		proofStore:       pgstore.NewProofStore(pool),
		statsStore:       pgstore.NewStatsStore(pool),
		settingsStore:    pgstore.NewSettingsStore(pool),
	}

	// ClickHouse (analytics, optional)
	var chConn *chstore.Conn
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.executionStore = chstore.NewExecutionLogStore(chConn)
	} else {
		logger.Println("No --clickhouse-dsn, execution log kept in memory")
		stores.executionStore = memory.NewExecutionLogStore()
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}

	return stores, cleanup, nil
}

// createScorer returns the HTTP risk model client, or nil for the local rule.
func createScorer(cfg config.RiskConfig, tracing bool, logger *log.Logger) risk.Scorer {
	if cfg.Endpoint == "" {
		logger.Println("No risk endpoint configured, scoring with the local rule")
		return nil
	}
	var opts []risk.ScorerOption
	if tracing {
		opts = append(opts, risk.WithHTTPClient(tracedClient(risk.DefaultTimeout)))
	}
	opts = append(opts,
		risk.WithTimeout(cfg.Timeout.Duration),
		risk.WithMaxRetries(cfg.MaxRetries),
	)
	if cfg.APIKey != "" {
		opts = append(opts, risk.WithAPIKey(cfg.APIKey))
	}
	logger.Printf("Scoring risk via %s", cfg.Endpoint)
	return risk.NewHTTPScorer(cfg.Endpoint, opts...)
}

// createCommitter returns the settlement committer for batches.
func createCommitter(cfg config.SettlementConfig, tracing bool, logger *log.Logger) batch.Committer {
	if cfg.UseStub {
		logger.Println("Using stub settlement committer")
		return settlement.NewStubCommitter(50 * time.Millisecond)
	}
	programID := cfg.ProgramID
	if programID == "" {
		programID = solana.DefaultProgramID
	}
	logger.Printf("Committing batches via %s (program %s)", cfg.RPCURL, programID)
	var opts []solana.ClientOption
	if tracing {
		opts = append(opts, solana.WithHTTPClient(tracedClient(solana.DefaultTimeout)))
	}
	client := solana.NewHTTPClient(cfg.RPCURL, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.GetHealth(ctx); err != nil {
		logger.Printf("Settlement node health check failed: %v", err)
	}
	return settlement.NewRPCCommitter(client, programID)
}

// tracedClient returns an HTTP client whose requests carry trace context.
func tracedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
