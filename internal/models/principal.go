package models

import (
	"time"
)

// AccountKind represents the kind of account a principal holds.
const (
	AccountKindClient = "client" // Regular client user, scoped to listed organizations
	AccountKindAgency = "agency" // Agency staff, may operate against any organization
)

// Principal represents the authenticated user.
// The identity session store holds a read-mostly live mirror of this for the
// lifetime of the session, invalidated at sign-out.
type Principal struct {
	PrincipalID string // Auth provider subject
	Email       string
	DisplayName string
	AccountKind string // "client" or "agency"

	// OrgIDs lists the organizations the principal belongs to. For every
	// entry a Membership document should exist; the membership guard
	// restores that invariant when it is violated.
	OrgIDs []string

	// Cached profile flags
	NotifyByEmail bool
	NotifyInApp   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAgency returns true if the principal may operate against organizations
// it is not a listed member of.
func (p *Principal) IsAgency() bool {
	return p.AccountKind == AccountKindAgency
}

// BelongsTo returns true if orgID appears in the principal's organization list.
func (p *Principal) BelongsTo(orgID string) bool {
	for _, id := range p.OrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

// MinimalPrincipal synthesizes a profile from auth provider data alone.
// Used when the profile document cannot be read (e.g. token acquisition
// failed); the user is not blocked on a full profile.
func MinimalPrincipal(principalID, email, displayName string) *Principal {
	return &Principal{
		PrincipalID: principalID,
		Email:       email,
		DisplayName: displayName,
		AccountKind: AccountKindClient,
	}
}
