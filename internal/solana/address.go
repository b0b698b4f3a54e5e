package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const (
	// PublicKeyLength is the byte length of an account address.
	PublicKeyLength = 32
	// MaxSeedLength is the maximum length of a single PDA seed.
	MaxSeedLength = 32
	// MaxSeeds is the maximum number of PDA seeds.
	MaxSeeds = 16

	// DefaultProgramID owns the per-transaction protection records.
	DefaultProgramID = "835NApE56thzrECSzQnBiEGgwDpgHbeMxw9xPWHZcsEj"

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidAddress is returned for strings that are not base58 32-byte keys.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoViableBump is returned when no bump yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
)

// DecodeAddress decodes a base58 account address.
func DecodeAddress(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != PublicKeyLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	return b, nil
}

// IsValidAddress reports whether addr is a base58 32-byte key.
func IsValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// FindProgramAddress derives the program address for seeds, searching bumps
// from 255 down for the first hash that is not a valid ed25519 point.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}
	if len(seeds) > MaxSeeds-1 {
		return "", 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return "", 0, fmt.Errorf("seed %d exceeds %d bytes", i, MaxSeedLength)
		}
	}

	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// OwnerSeed returns the owner seed for identity: the decoded key when
// identity is an address, otherwise its SHA-256 digest.
func OwnerSeed(identity string) []byte {
	if b, err := DecodeAddress(identity); err == nil {
		return b
	}
	sum := sha256.Sum256([]byte(identity))
	return sum[:]
}

// TransactionAccount derives the record address of a protected transaction
// from seeds ("transaction", owner, transaction uuid bytes).
func TransactionAccount(programID, identity, transactionID string) (string, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return "", fmt.Errorf("transaction id: %w", err)
	}
	addr, _, err := FindProgramAddress([][]byte{
		[]byte("transaction"),
		OwnerSeed(identity),
		id[:],
	}, programID)
	return addr, err
}
