package entitlement

import (
	"errors"

	"github.com/keyforge/keyforge/internal/keygen"
	"github.com/keyforge/keyforge/internal/store"
)

// Sentinel errors surfaced by the service. Store and keygen sentinels
// are re-exported so transport bindings only import this package.
var (
	// ErrNotFound indicates the referenced license does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrDuplicateKey indicates a license key collision on update.
	ErrDuplicateKey = store.ErrDuplicateKey
	// ErrExhausted indicates key allocation spent its attempt budget.
	ErrExhausted = keygen.ErrExhausted
	// ErrBlocked indicates a blocked license was used to register a device.
	ErrBlocked = errors.New("license is blocked")
)

// ValidationError describes malformed or missing caller input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// invalidInput builds a ValidationError.
func invalidInput(reason string) error {
	return &ValidationError{Reason: reason}
}
