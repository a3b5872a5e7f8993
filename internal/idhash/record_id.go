package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeIdentityID computes a deterministic stealth identity id using SHA256.
// Formula: SHA256(address|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeIdentityID(address string, createdAt int64) string {
	data := fmt.Sprintf("%s|%d", address, createdAt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a deterministic position id using SHA256.
// Formula: SHA256(pool_id|tick_lower|tick_upper|salt|source)
// Chain-derived and local records for the same key get distinct ids so the
// reconciler can replace one namespace without touching the other.
func ComputePositionID(poolID string, tickLower, tickUpper int32, salt, source string) string {
	data := fmt.Sprintf("%s|%d|%d|%s|%s", poolID, tickLower, tickUpper, salt, source)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeTransactionID computes a deterministic transaction record id using SHA256.
// Formula: SHA256(hash|submitter|timestamp)
func ComputeTransactionID(txHash, submitter string, timestamp int64) string {
	data := fmt.Sprintf("%s|%s|%d", txHash, submitter, timestamp)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
