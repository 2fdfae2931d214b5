package models

import (
	"time"
)

// Request status values.
const (
	RequestStatusOpen       = "open"
	RequestStatusInProgress = "in_progress"
	RequestStatusInReview   = "in_review"
	RequestStatusDone       = "done"
	RequestStatusArchived   = "archived"
)

// Request is a tenant-scoped work request raised by a client.
type Request struct {
	RequestID string
	OrgID     string
	Title     string
	Status    string
	Pinned    bool

	// ShortCode is a human-friendly display code (e.g. "REQ-4fQz8p"),
	// shown in lists and referenced in conversations.
	ShortCode string

	CreatedBy string // principal ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Activity is an append-only audit record of something that happened within
// an organization (request created, member invited, status changed, ...).
type Activity struct {
	ActivityID string
	OrgID      string
	Actor      string // principal ID
	Kind       string // e.g. "request.status_changed"
	Subject    string // ID of the affected entity
	Message    string
	CreatedAt  time.Time
}

// Notification is a user-scoped alert. Unlike the other collections it is
// keyed by recipient principal, not by organization.
type Notification struct {
	NotificationID string
	PrincipalID    string // recipient
	OrgID          string // originating organization, for display context
	Kind           string
	Message        string
	Read           bool
	CreatedAt      time.Time
}

// Comment belongs to a request; its organization scope is derived via the
// parent request.
type Comment struct {
	CommentID string
	RequestID string
	Author    string // principal ID
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
