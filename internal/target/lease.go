package target

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// Lease tracks whether a handle generation is still the live one
type Lease struct {
	generation int
	revoked    atomic.Bool
}

// NewLease starts a lease for the given generation
func NewLease(generation int) *Lease {
	return &Lease{generation: generation}
}

// Generation returns the generation this lease was issued for
func (l *Lease) Generation() int {
	return l.generation
}

// Revoke marks the generation stale
func (l *Lease) Revoke() {
	l.revoked.Store(true)
}

// Check returns ErrTargetDetached once the lease has been revoked
func (l *Lease) Check() error {
	if l.revoked.Load() {
		return fmt.Errorf("%w: generation %d was replaced", ErrTargetDetached, l.generation)
	}
	return nil
}

var detachedMarkers = []string{
	"target closed",
	"target page, context or browser has been closed",
	"has been closed",
	"execution context was destroyed",
	"frame was detached",
	"cannot find context with specified id",
	"browser has disconnected",
	"websocket: close",
}

// Classify maps backend errors that mean the page went away onto
// ErrTargetDetached and leaves everything else untouched
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrTargetDetached) || errors.Is(err, ErrElementNotFound) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range detachedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrTargetDetached, err)
		}
	}
	return err
}
