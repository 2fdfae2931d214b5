package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/fault"
)

// Navigator is the navigation/path capability the resolver consumes.
type Navigator interface {
	// Path returns the current navigation path string.
	Path() string

	// Replace navigates to path without adding a history entry.
	Replace(path string)
}

// Switcher holds the session-scoped organization override and performs
// explicit tenant switches.
type Switcher struct {
	nav    Navigator
	logger zerolog.Logger

	mu         sync.Mutex
	overrideID string
}

// NewSwitcher creates a switcher with no override set.
func NewSwitcher(nav Navigator, logger zerolog.Logger) *Switcher {
	return &Switcher{nav: nav, logger: logger}
}

// Override returns the session-scoped override id, or "".
func (s *Switcher) Override() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrideID
}

// Active resolves the currently active organization id from the live path
// and the override.
func (s *Switcher) Active() string {
	return Resolve(s.nav.Path(), s.Override())
}

// Switch changes the active organization to targetOrg. Rejected when the
// principal is not a listed member, unless the principal is an agency
// account; on rejection the active organization is unchanged.
func (s *Switcher) Switch(ctx context.Context, targetOrg string, p TenantLister) error {
	if targetOrg == "" {
		return fault.Validation("tenant.switch", fmt.Errorf("target organization id is empty"))
	}
	if p == nil {
		return fault.Validation("tenant.switch", fmt.Errorf("no principal"))
	}

	if !p.BelongsTo(targetOrg) && !p.IsAgency() {
		s.logger.Warn().Str("org_id", targetOrg).Msg("tenant switch rejected")
		return fault.PermissionDenied("tenant.switch", fault.ErrAccessDenied)
	}

	s.mu.Lock()
	s.overrideID = targetOrg
	s.mu.Unlock()

	s.nav.Replace("/org/" + targetOrg + "/dashboard")
	s.logger.Info().Str("org_id", targetOrg).Msg("switched organization")
	return nil
}

// Clear drops the override, e.g. at sign-out.
func (s *Switcher) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideID = ""
}
