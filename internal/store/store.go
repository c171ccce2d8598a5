// Package store persists license records and device bindings via GORM.
package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicateKey indicates a license key uniqueness violation.
	ErrDuplicateKey = errors.New("store: license key already exists")
)

// isDuplicateKeyError reports whether the database rejected a write for
// violating a unique constraint. GORM's error translation covers both
// dialects; the message check is a fallback for drivers that bypass it.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
