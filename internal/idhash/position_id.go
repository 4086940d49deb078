package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PositionID computes a deterministic position id using SHA256.
// Formula: SHA256(candidate_id|venue|entry_size)
// Returns the first 32 hex characters; positions are keyed by token first,
// the id only has to be unique across the journal.
func PositionID(candidateID, venue, entrySize string) string {
	data := fmt.Sprintf("%s|%s|%s", candidateID, venue, entrySize)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
