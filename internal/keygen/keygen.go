// Package keygen produces and validates six-letter license keys.
package keygen

import (
	"context"
	"errors"
	"math/rand"
	"strings"
)

const (
	// KeyLength is the exact number of characters in a license key.
	KeyLength = 6

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// maxAttempts is the hard cap on allocation draws. At 26^6 possible
	// keys a hundred consecutive collisions means something is wrong;
	// the caller must surface the failure rather than issue a duplicate.
	maxAttempts = 100
)

// ErrExhausted indicates the allocation attempt budget was spent
// without finding an unused key.
var ErrExhausted = errors.New("keygen: unable to allocate a unique license key")

// FormatError describes a license key that violates the required shape.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

// Registry answers whether a license key is already taken.
type Registry interface {
	KeyExists(ctx context.Context, key string) (bool, error)
}

// Candidate returns a uniformly random six-letter uppercase key.
func Candidate() string {
	var b strings.Builder
	b.Grow(KeyLength)
	for i := 0; i < KeyLength; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}

// Allocate draws candidates until one is absent from the registry,
// returning ErrExhausted once the attempt budget is spent.
func Allocate(ctx context.Context, reg Registry) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := Candidate()
		exists, err := reg.KeyExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

// Validate checks the shape of a license key: non-empty, exactly six
// characters, ASCII letters only. Callers canonicalize to uppercase
// before validating and storing.
func Validate(key string) error {
	if key == "" {
		return &FormatError{Reason: "License key is required"}
	}
	if len(key) != KeyLength {
		return &FormatError{Reason: "License key must be exactly 6 characters"}
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return &FormatError{Reason: "License key must contain only letters (A-Z)"}
		}
	}
	return nil
}
