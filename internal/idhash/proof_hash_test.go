package idhash

import (
	"fmt"
	"testing"
)

func TestComputeProofHash(t *testing.T) {
	got := ComputeProofHash("alice", "SOL", "USDC", 1_000_000, 985_000, 1704067234567000000, "tx-1")

	if len(got) != 64 {
		t.Errorf("ComputeProofHash() length = %d, want 64", len(got))
	}

	got2 := ComputeProofHash("alice", "SOL", "USDC", 1_000_000, 985_000, 1704067234567000000, "tx-1")
	if got != got2 {
		t.Errorf("ComputeProofHash() not deterministic: %s != %s", got, got2)
	}
}

func TestComputeProofHash_DifferentInputs(t *testing.T) {
	base := ComputeProofHash("alice", "SOL", "USDC", 100, 90, 1000, "salt")

	variants := map[string]string{
		"identity":      ComputeProofHash("bob", "SOL", "USDC", 100, 90, 1000, "salt"),
		"input asset":   ComputeProofHash("alice", "BONK", "USDC", 100, 90, 1000, "salt"),
		"output asset":  ComputeProofHash("alice", "SOL", "USDT", 100, 90, 1000, "salt"),
		"input amount":  ComputeProofHash("alice", "SOL", "USDC", 101, 90, 1000, "salt"),
		"output amount": ComputeProofHash("alice", "SOL", "USDC", 100, 91, 1000, "salt"),
		"timestamp":     ComputeProofHash("alice", "SOL", "USDC", 100, 90, 1001, "salt"),
		"salt":          ComputeProofHash("alice", "SOL", "USDC", 100, 90, 1000, "other"),
	}

	for field, h := range variants {
		if h == base {
			t.Errorf("Different %s should produce different hash", field)
		}
	}
}

func TestComputeProofHash_UniqueAcrossTransactions(t *testing.T) {
	const n = 10000
	seen := make(map[string]int, n)

	// Identical request content and timestamp; only the per-transaction salt differs
	for i := 0; i < n; i++ {
		h := ComputeProofHash("alice", "SOL", "USDC", 1_000_000, 985_000, 1704067234567000000, fmt.Sprintf("tx-%d", i))
		if prev, exists := seen[h]; exists {
			t.Fatalf("collision between transaction %d and %d: %s", prev, i, h)
		}
		seen[h] = i
	}
}
