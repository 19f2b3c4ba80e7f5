package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrCardLocked     = errors.New("card position is locked")
	ErrGestureActive  = errors.New("card already owned by an active gesture")
	ErrNoGesture      = errors.New("no active gesture")
	ErrOrderKeyRange  = errors.New("order key lower bound not below upper bound")
	ErrNotResizable   = errors.New("card kind is not resizable")
	ErrNotLine        = errors.New("card is not a line")
	ErrEndpointTarget = errors.New("endpoint cannot attach to this card")
)

// PersistenceError wraps a card repository failure. The engine keeps the local
// optimistic state when one occurs; callers retry on the next mutation.
type PersistenceError struct {
	Op     string
	CardID string
	Err    error
}

// Error renders the wrapped persistence failure.
func (e *PersistenceError) Error() string {
	if e.CardID != "" {
		return fmt.Sprintf("persistence %s for card %s: %v", e.Op, e.CardID, e.Err)
	}
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
