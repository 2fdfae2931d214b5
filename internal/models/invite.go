package models

import (
	"time"
)

// Invite status values.
const (
	InviteStatusPending   = "pending"
	InviteStatusAccepted  = "accepted"
	InviteStatusCancelled = "cancelled"
)

// Invite is a pending offer of membership in an organization, addressed
// by email because the recipient may not have a principal yet.
type Invite struct {
	InviteID  string
	OrgID     string
	Email     string
	Role      string
	Status    string
	InvitedBy string // principal ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func EncodeInvite(i *Invite) map[string]any {
	return map[string]any{
		"invite_id":  i.InviteID,
		"org_id":     i.OrgID,
		"email":      i.Email,
		"role":       i.Role,
		"status":     i.Status,
		"invited_by": i.InvitedBy,
		"created_at": encodeTime(i.CreatedAt),
		"updated_at": encodeTime(i.UpdatedAt),
	}
}

func DecodeInvite(data map[string]any) *Invite {
	return &Invite{
		InviteID:  asString(data["invite_id"]),
		OrgID:     asString(data["org_id"]),
		Email:     asString(data["email"]),
		Role:      asString(data["role"]),
		Status:    asString(data["status"]),
		InvitedBy: asString(data["invited_by"]),
		CreatedAt: asTime(data["created_at"]),
		UpdatedAt: asTime(data["updated_at"]),
	}
}
