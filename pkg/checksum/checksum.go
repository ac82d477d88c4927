// Package checksum computes the SHA-256 digests recorded for archive exports
// and compares them against the digest reported by a storage backend.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// CalculateSHA256 returns the lowercase hex SHA-256 of everything read from reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Matches reports whether a backend-reported digest agrees with the expected
// one. An empty reported digest means the backend did not compute one and is
// accepted.
func Matches(expected, reported string) bool {
	if reported == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(reported))
}
