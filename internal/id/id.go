// Package id generates identifiers for records the bookstore did not assign one to.
package id

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TemporaryPrefix marks ids synthesized for listing items whose product id
// could not be resolved. Such ids are unstable across calls.
const TemporaryPrefix = "tmp"

// Generator produces a fresh id on every call.
type Generator func() (string, error)

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "tmp-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Temporary is the default Generator for synthesized listing ids.
func Temporary() (string, error) {
	return Generate(TemporaryPrefix)
}

// IsTemporary reports whether id was synthesized rather than assigned by the store.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix+"-")
}

// Sequence returns a deterministic Generator yielding tmp-1, tmp-2, ...
// It keeps parser output reproducible in tests.
func Sequence() Generator {
	var n atomic.Int64
	return func() (string, error) {
		return TemporaryPrefix + "-" + strconv.FormatInt(n.Add(1), 10), nil
	}
}
