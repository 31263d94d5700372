package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the cache key for a request. Identity is part of the
// key, so one user's cached reply is never served to another, and the zero
// byte keeps identity and payload from bleeding into each other.
func Fingerprint(identityKey string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(identityKey))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
