package solana

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

func TestDecodeAddress(t *testing.T) {
	if _, err := DecodeAddress(DefaultProgramID); err != nil {
		t.Errorf("program id should decode: %v", err)
	}

	tests := []string{
		"",
		"not-base58-0OIl",
		base58.Encode([]byte("short")),
	}
	for _, in := range tests {
		if _, err := DecodeAddress(in); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("DecodeAddress(%q): expected ErrInvalidAddress, got %v", in, err)
		}
	}
}

func TestFindProgramAddress_OffCurveAndDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("protection"), make([]byte, 32)}

	a, bumpA, err := FindProgramAddress(seeds, DefaultProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	b, bumpB, _ := FindProgramAddress(seeds, DefaultProgramID)
	if a != b || bumpA != bumpB {
		t.Errorf("derivation not deterministic: %s/%d vs %s/%d", a, bumpA, b, bumpB)
	}

	raw, err := DecodeAddress(a)
	if err != nil {
		t.Fatalf("derived address does not decode: %v", err)
	}
	if isOnCurve(raw) {
		t.Error("derived address must be off curve")
	}
}

func TestFindProgramAddress_SeedLimits(t *testing.T) {
	long := [][]byte{[]byte(strings.Repeat("x", 33))}
	if _, _, err := FindProgramAddress(long, DefaultProgramID); err == nil {
		t.Error("expected error for oversized seed")
	}
	if _, _, err := FindProgramAddress(nil, "bad"); err == nil {
		t.Error("expected error for invalid program id")
	}
}

func TestTransactionAccount(t *testing.T) {
	id := uuid.New().String()

	a, err := TransactionAccount(DefaultProgramID, "alice", id)
	if err != nil {
		t.Fatalf("TransactionAccount: %v", err)
	}
	b, _ := TransactionAccount(DefaultProgramID, "bob", id)
	c, _ := TransactionAccount(DefaultProgramID, "alice", uuid.New().String())

	if a == b || a == c {
		t.Error("addresses should differ by owner and transaction")
	}
	if !IsValidAddress(a) {
		t.Errorf("derived address %q is not a valid key", a)
	}

	if _, err := TransactionAccount(DefaultProgramID, "alice", "not-a-uuid"); err == nil {
		t.Error("expected error for non-uuid transaction id")
	}
}

func TestOwnerSeed(t *testing.T) {
	raw, _ := DecodeAddress(DefaultProgramID)
	if got := OwnerSeed(DefaultProgramID); string(got) != string(raw) {
		t.Error("address identity should seed with its key bytes")
	}
	if got := OwnerSeed("alice"); len(got) != PublicKeyLength {
		t.Errorf("hashed seed length = %d", len(got))
	}
}
