package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"swap-guard/internal/domain"
)

// The container is shared by every test in the package. It is migrated once,
// snapshotted, and restored before each test so tests start from an empty schema.
var shared struct {
	once      sync.Once
	container *postgres.PostgresContainer
	dsn       string
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.container != nil {
		_ = shared.container.Terminate(context.Background())
	}
	os.Exit(code)
}

// setupTestDB returns a pool on a freshly restored database. The returned func
// closes the pool and must run before the next test restores the snapshot.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()
	shared.once.Do(func() {
		shared.container, shared.dsn, shared.err = startMigrated(ctx)
	})
	if shared.err != nil {
		t.Fatalf("postgres container: %v", shared.err)
	}
	if err := shared.container.Restore(ctx); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}

	pool, err := NewPool(ctx, shared.dsn, WithMaxConns(4))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return pool, pool.Close
}

func startMigrated(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("swap_guard"),
		postgres.WithUsername("swap_guard"),
		postgres.WithPassword("swap_guard"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", err
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return container, "", err
	}
	err = applySchema(ctx, pool, os.DirFS("../migrations/postgres"))
	pool.Close()
	if err != nil {
		return container, "", err
	}

	if err := container.Snapshot(ctx); err != nil {
		return container, "", fmt.Errorf("snapshot: %w", err)
	}
	return container, dsn, nil
}

// applySchema runs every .sql file of dir in name order.
func applySchema(ctx context.Context, pool *Pool, dir fs.FS) error {
	files, err := fs.Glob(dir, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, file := range files {
		sql, err := fs.ReadFile(dir, file)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", file, err)
		}
	}
	return nil
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}

// testTransaction returns a simulated transaction owned by identity.
func testTransaction(id, identity string, createdAt int64) *domain.Transaction {
	return &domain.Transaction{
		ID:                id,
		Identity:          identity,
		AccountAddress:    "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		InputAsset:        "SOL",
		OutputAsset:       "USDC",
		InputAmount:       2_000_000_000,
		OutputAmount:      297_400_000,
		RiskScore:         64,
		RiskLevel:         domain.RiskLevelMedium,
		MevDetected:       true,
		RiskFactors:       []string{"sandwich bots active", "thin liquidity"},
		RiskReasoning:     "elevated sandwich activity",
		RecommendedAction: domain.ActionProtect,
		RiskSource:        domain.RiskSourceModel,
		RiskSubscores:     domain.RiskSubscores{Sandwich: 71, Frontrun: 40, Volatility: 22},
		SelectedRoute:     domain.VenueOrca,
		DirectRoute:       domain.VenueJupiter,
		Routes: []domain.Route{
			{Venue: domain.VenueJupiter, EstimatedOutput: 298_000_000, PriceImpactPct: 0.4, RiskScore: 70, LiquidityDepth: 5_000_000_000, LatencyMs: 180},
			{Venue: domain.VenueOrca, EstimatedOutput: 297_400_000, PriceImpactPct: 0.6, RiskScore: 25, LiquidityDepth: 3_000_000_000, LatencyMs: 140},
		},
		SelectionReasoning: "Orca selected: lowest risk",
		PotentialSavings:   0.45,
		Status:             domain.TxStatusSimulating,
		ProofHash:          "proof-" + id,
		SimulationTimeMs:   12,
		SelectionTimeMs:    1,
		CreatedAt:          createdAt,
	}
}
