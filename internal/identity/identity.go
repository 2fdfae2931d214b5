// Package identity defines the auth provider boundary. The portal core
// never manages credentials; it consumes sign-in state and fresh tokens
// from a Provider and inspects tokens only for readiness.
package identity

import (
	"context"
	"errors"
)

// ErrNoToken is returned when a fresh token cannot be acquired. The session
// store treats this as non-fatal and falls back to a minimal profile.
var ErrNoToken = errors.New("no auth token available")

// AuthState is the provider's view of the current principal. Zero value
// means signed out.
type AuthState struct {
	SignedIn    bool
	PrincipalID string
	Email       string
	DisplayName string
}

// Provider is the external auth capability.
type Provider interface {
	// CurrentState returns the current sign-in state.
	CurrentState(ctx context.Context) (AuthState, error)

	// OnStateChange registers a callback invoked on every sign-in or
	// sign-out transition, with the new state. The returned cancel
	// detaches the callback and is safe to call more than once.
	OnStateChange(fn func(AuthState)) (cancel func())

	// FreshToken returns a token valid for backend reads. The backing
	// store rejects reads issued before a fresh token is available.
	FreshToken(ctx context.Context) (string, error)
}
