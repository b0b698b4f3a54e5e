package idhash

import "testing"

func TestComputeBatchHash(t *testing.T) {
	h := ComputeBatchHash("batch-1", 1704067200000)
	if len(h) != 64 {
		t.Errorf("ComputeBatchHash() length = %d, want 64", len(h))
	}
	if h != ComputeBatchHash("batch-1", 1704067200000) {
		t.Error("ComputeBatchHash() not deterministic")
	}
	if h == ComputeBatchHash("batch-1", 1704067200001) {
		t.Error("Different timestamp should produce different hash")
	}
	if h == ComputeBatchHash("batch-2", 1704067200000) {
		t.Error("Different batch id should produce different hash")
	}
}
