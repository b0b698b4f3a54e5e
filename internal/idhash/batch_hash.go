package idhash

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ComputeBatchHash computes a batch hash using BLAKE3 over (batch_id, timestamp_ms).
// The timestamp is the creation time for a pending batch and the execution
// start time once the batch is sealed. Returns hex-encoded hash (64 characters).
func ComputeBatchHash(batchID string, timestampMs int64) string {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestampMs))

	h := blake3.New()
	h.Write([]byte(batchID))
	h.Write(ts[:])

	var sum [32]byte
	h.Digest().Read(sum[:])
	return hex.EncodeToString(sum[:])
}
