package models

import (
	"time"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Membership is the join record between a principal and an organization.
// Its composite identity is {OrgID, PrincipalID}; the document path is
// deterministic, so concurrent create-if-missing writes collapse to a
// single record (last write wins, no duplicates possible).
type Membership struct {
	OrgID       string
	PrincipalID string
	Role        string

	// Denormalized for member lists, avoids a profile read per row.
	Email       string
	DisplayName string

	CreatedAt time.Time
	UpdatedAt time.Time
}
