package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxKeyLen bounds the stored key column; longer keys are digested.
const maxKeyLen = 120

// NormalizeKey lowercases and trims a resource key so equivalent spellings
// contend on the same row. Keys past maxKeyLen are replaced with a
// fixed-width sha256 digest; this bounds storage, it is not a security
// boundary.
func NormalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if len(k) <= maxKeyLen {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return "h:" + hex.EncodeToString(sum[:])
}
