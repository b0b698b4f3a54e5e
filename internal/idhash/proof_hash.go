package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeProofHash computes the content hash of a transaction's proof using SHA256.
// Formula: SHA256(identity|input_asset|output_asset|input_amount|output_amount|timestamp_ns|salt)
// The salt is the transaction id, which makes the hash unique per transaction.
// Returns hex-encoded hash (64 characters).
func ComputeProofHash(
	identity string,
	inputAsset string,
	outputAsset string,
	inputAmount uint64,
	outputAmount uint64,
	timestampNanos int64,
	salt string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%s",
		identity,
		inputAsset,
		outputAsset,
		inputAmount,
		outputAmount,
		timestampNanos,
		salt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
