// Package idempotency derives deterministic fingerprints for deletion
// requests so client retries deduplicate instead of creating duplicate work.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const singleKeyPrefix = "single-"

// Key fingerprints (requester, target-id-set). Target ids are sorted before
// hashing so any permutation of the same set yields the same key. Pure; no
// failure modes.
func Key(requesterID string, targetIDs []string) string {
	sorted := make([]string, len(targetIDs))
	copy(sorted, targetIDs)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(requesterID))
	for _, id := range sorted {
		// Length-free separator is unsafe ("ab"+"c" == "a"+"bc"); NUL never
		// appears in notification ids.
		h.Write([]byte{0})
		h.Write([]byte(id))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// SingleKey derives the key for a one-element deletion. The target id is
// already unique, so the hash is unnecessary.
func SingleKey(targetID string) string {
	return singleKeyPrefix + strings.TrimSpace(targetID)
}
