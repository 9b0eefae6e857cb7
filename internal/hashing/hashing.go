// SPDX-License-Identifier: MIT

// Package hashing provides deterministic fingerprints for provenance tracking.
//
// Fingerprints are stable across processes: object hashing canonicalises the
// JSON encoding (sorted keys, no insignificant whitespace) before digesting,
// so two structurally equal parameter sets always hash identically.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// File computes the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Object computes the hex-encoded SHA-256 digest of v's canonical JSON form.
// encoding/json emits map keys in sorted order, so round-tripping through a
// generic value removes struct field ordering from the digest.
func Object(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for hashing: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalise for hashing: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("marshal canonical form: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// String computes the hex-encoded SHA-256 digest of s.
func String(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
