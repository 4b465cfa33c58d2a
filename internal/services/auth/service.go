// Package auth provides the passcode gate for control requests.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Service defines the interface for passcode authentication.
type Service interface {
	Authenticate(supplied string) bool
}

// Impl implements the auth Service against a single configured passcode.
type Impl struct {
	digest [sha256.Size]byte
}

// New creates a new auth service for the configured passcode.
func New(configured string) *Impl {
	return &Impl{digest: sha256.Sum256([]byte(configured))}
}

// Authenticate reports whether supplied matches the configured passcode.
func (s *Impl) Authenticate(supplied string) bool {
	got := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(got[:], s.digest[:]) == 1
}
