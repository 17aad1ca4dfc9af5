package haystack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for key derivation. The version suffix leaves room for
// changing the canonical form without colliding with old keys.
const (
	DomainDeps = "haybind/deps/v1"
	DomainGrid = "haybind/grid/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Key derives a stable identity for v under a domain. Two values have the
// same key exactly when their canonical forms are byte-identical.
func Key(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("key %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// GridKey is the change-detection key of a grid.
func GridKey(g Grid) string {
	k, err := Key(DomainGrid, g)
	if err != nil {
		// Every Grid element is a Dict of Values, which always marshal.
		panic(err)
	}
	return k
}
