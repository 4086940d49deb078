package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CandidateID computes a deterministic candidate id using SHA256.
// Formula: SHA256(token|discovered_at)
// Returns hex-encoded hash (64 characters).
func CandidateID(token string, discoveredAt int64) string {
	data := fmt.Sprintf("%s|%d", token, discoveredAt)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
