package domain

import "testing"

func TestBatch_DerivedFields(t *testing.T) {
	b := &Batch{ID: "b1"}
	if b.Count() != 0 || b.TotalValue() != 0 {
		t.Fatalf("empty batch: count=%d value=%d", b.Count(), b.TotalValue())
	}

	b.Members = append(b.Members,
		BatchMember{TransactionID: "t1", Identity: "alice", InputAmount: 1000},
		BatchMember{TransactionID: "t2", Identity: "bob", InputAmount: 2500},
		BatchMember{TransactionID: "t3", Identity: "alice", InputAmount: 500},
	)

	if b.Count() != 3 {
		t.Errorf("Count() = %d, want 3", b.Count())
	}
	if b.TotalValue() != 4000 {
		t.Errorf("TotalValue() = %d, want 4000", b.TotalValue())
	}
	if b.EstimatedSavings() != 40 {
		t.Errorf("EstimatedSavings() = %d, want 40", b.EstimatedSavings())
	}

	ids := b.Identities()
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Errorf("Identities() = %v, want [alice bob]", ids)
	}

	if !b.HasMember("t2") || b.HasMember("t9") {
		t.Error("HasMember mismatch")
	}
}

func TestBatch_CloneIsIndependent(t *testing.T) {
	b := &Batch{ID: "b1", Members: []BatchMember{{TransactionID: "t1", InputAmount: 1}}}
	c := b.Clone()
	c.Members = append(c.Members, BatchMember{TransactionID: "t2", InputAmount: 2})
	c.Members[0].InputAmount = 99

	if b.Count() != 1 || b.Members[0].InputAmount != 1 {
		t.Errorf("original mutated through clone: %+v", b.Members)
	}
}
