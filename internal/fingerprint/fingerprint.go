// Package fingerprint computes content digests used for integrity checks.
//
// Digests are SHA-256 over the raw content bytes, rendered as 64 lowercase
// hex characters. The same content always yields the same digest, so stored
// digests can be compared against recomputed ones to detect tampering.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length in characters of a hex-encoded digest.
const Size = sha256.Size * 2

// Hash returns the SHA-256 digest of content as lowercase hex.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashString returns the SHA-256 digest of a string as lowercase hex.
func HashString(content string) string {
	return Hash([]byte(content))
}
