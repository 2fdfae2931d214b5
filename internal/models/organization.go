package models

import (
	"time"
)

// OrganizationStatus values.
const (
	OrgStatusActive    = "active"
	OrgStatusInactive  = "inactive"
	OrgStatusSuspended = "suspended"
)

// Organization represents a tenant in the system. Each organization owns its
// requests, files and members; its ID is globally unique and immutable once
// created.
type Organization struct {
	OrgID              string
	Name               string
	PlanTier           string // "starter", "growth", "enterprise"
	Status             string
	CreatorPrincipalID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
