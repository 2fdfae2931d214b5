package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CheckTokenReady reports whether a token is usable for store reads: it
// must parse as a JWT and must not be expired. Signature verification is
// the auth provider's responsibility, not ours; we only gate on readiness
// to avoid a known class of permission-denied races on cold start.
func CheckTokenReady(tokenStr string, now time.Time) error {
	if tokenStr == "" {
		return ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return errors.New("token expired")
	}
	return nil
}

// TokenSubject extracts the subject claim without verifying the signature.
// Used to cross-check that a cached profile belongs to the signed-in
// principal.
func TokenSubject(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	return claims.Subject, nil
}
