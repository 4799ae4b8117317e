// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and SHA-256 content addressing. Every hash the kernel
// persists or publishes is computed over the canonical form, so any external
// verifier can recompute it byte-for-byte.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal returns the RFC 8785 canonical JSON encoding of v. Struct json
// tags are respected; key order and number formatting follow the JCS rules.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Hash returns "sha256:<hex>" of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns "sha256:<hex>" of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Fingerprint returns the first n hex characters of a "sha256:<hex>" hash,
// for size-limited external memos. The full hash remains the local source of
// truth; the fingerprint is only a pointer to it.
func Fingerprint(hash string, n int) string {
	const prefix = "sha256:"
	hexPart := hash
	if len(hash) > len(prefix) && hash[:len(prefix)] == prefix {
		hexPart = hash[len(prefix):]
	}
	if n > len(hexPart) {
		n = len(hexPart)
	}
	return hexPart[:n]
}
