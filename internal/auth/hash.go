package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashKey returns the hex-encoded SHA-256 digest of a raw API key. Only the
// digest is ever stored or compared; the raw key cannot be recovered from it.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two digests in constant time so the comparison leaks
// nothing about partial matches.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
