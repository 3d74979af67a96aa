// Package id provides utilities for generating URL-safe identifiers.
//
// Identifiers are generated using UUIDv4 bytes encoded as base32 (RFC 4648)
// with no padding. The resulting strings are 26 characters long, lowercase,
// and safe for use in URLs and file paths.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a new 26-character lowercase base32 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// NewShortCode generates an 8-character lowercase base32 token suitable
// for human-shareable links. Uniqueness is enforced by the caller's store,
// not by the generator.
func NewShortCode() (string, error) {
	var raw [5]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}
