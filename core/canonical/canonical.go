// Package canonical produces the byte-deterministic JSON form that
// signatures are computed over. Two semantically identical manifests
// must canonicalize to identical bytes.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gowebpki/jcs"
)

// Transform returns the RFC 8785 (JCS) canonical form of JSON input.
// The transform is idempotent, so verifiers may apply it to bytes that
// are already canonical.
func Transform(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// Digest canonicalizes JSON input and returns a sha256 hex digest of
// the canonical bytes.
func Digest(input []byte) (string, error) {
	canonicalBytes, err := Transform(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:]), nil
}
