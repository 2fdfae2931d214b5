// Package session implements the identity session store: the live mirror
// of the authenticated principal's profile, with cached-then-live
// hydration. The session store is the single writer of the profile cache;
// every other component reads resolved identity through it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/collabhq/portal/internal/models"
)

// MaxCacheAge bounds how stale a cached profile may be and still be used
// for synchronous first render. The live subscription supersedes it.
const MaxCacheAge = 1 * time.Hour

// ErrCacheMiss is returned when no usable cached profile exists.
var ErrCacheMiss = errors.New("profile cache miss")

// CachedProfile is a profile plus the time it was written.
type CachedProfile struct {
	Principal *models.Principal `json:"principal"`
	SavedAt   time.Time         `json:"saved_at"`
}

// Stale reports whether the entry is older than MaxCacheAge.
func (c *CachedProfile) Stale(now time.Time) bool {
	return now.Sub(c.SavedAt) > MaxCacheAge
}

// ProfileCache is short-lived persistent storage for the signed-in
// principal's profile.
type ProfileCache interface {
	// Load returns the cached profile for principalID, or ErrCacheMiss.
	Load(ctx context.Context, principalID string) (*CachedProfile, error)

	// Store writes the profile, stamping the save time.
	Store(ctx context.Context, principalID string, p *models.Principal) error

	// Clear removes the cached profile. Clearing a missing entry is not an
	// error.
	Clear(ctx context.Context, principalID string) error
}
