package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
	"github.com/collabhq/portal/internal/mutate"
	"github.com/collabhq/portal/internal/util"
)

var validStatuses = map[string]bool{
	models.RequestStatusOpen:       true,
	models.RequestStatusInProgress: true,
	models.RequestStatusInReview:   true,
	models.RequestStatusDone:       true,
	models.RequestStatusArchived:   true,
}

var validRoles = map[string]bool{
	models.RoleAdmin:  true,
	models.RoleMember: true,
	models.RoleViewer: true,
}

// CreateRequest raises a new request in the active organization. The
// request appears on the dashboard immediately and is removed again if
// the remote write ultimately fails.
func (c *Core) CreateRequest(ctx context.Context, title string) (*models.Request, error) {
	if title == "" {
		return nil, fault.Validation("request.create", fmt.Errorf("title is empty"))
	}

	c.mu.Lock()
	orgID := c.dash.OrgID
	c.mu.Unlock()
	if orgID == "" {
		return nil, fault.Validation("request.create", fmt.Errorf("no active organization"))
	}

	now := time.Now()
	req := &models.Request{
		RequestID: uuid.NewString(),
		OrgID:     orgID,
		Title:     title,
		Status:    models.RequestStatusOpen,
		ShortCode: util.ShortCode("REQ"),
		CreatedBy: c.actorID(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name: "request.create",
		OnMutate: func() func() {
			c.mu.Lock()
			prior := c.dash.Requests
			c.dash.Requests = append([]*models.Request{req}, prior...)
			c.publishLocked()
			c.mu.Unlock()
			return func() {
				c.mu.Lock()
				c.dash.Requests = prior
				c.publishLocked()
				c.mu.Unlock()
			}
		},
		Mutate: func(ctx context.Context) error {
			if err := c.cfg.Docs.WriteDocument(ctx, docstore.RequestPath(req.RequestID), models.EncodeRequest(req)); err != nil {
				return err
			}
			c.recordActivity(ctx, req.CreatedBy, "request.created", req.RequestID, fmt.Sprintf("request %s created", req.ShortCode))
			return nil
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not create the request",
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateRequestStatus moves a request to status. The dashboard reflects
// the change immediately; on write failure the prior view is restored.
func (c *Core) UpdateRequestStatus(ctx context.Context, requestID, status string) error {
	if !validStatuses[status] {
		return fault.Validation("request.update_status", fmt.Errorf("unknown status %q", status))
	}

	current, err := c.loadedRequest("request.update_status", requestID)
	if err != nil {
		return err
	}

	updated := *current
	updated.Status = status
	updated.UpdatedAt = time.Now()
	actor := c.actorID()

	return c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name:     "request.update_status",
		OnMutate: func() func() { return c.swapRequest(&updated) },
		Mutate: func(ctx context.Context) error {
			if err := c.cfg.Docs.WriteDocument(ctx, docstore.RequestPath(requestID), models.EncodeRequest(&updated)); err != nil {
				return err
			}
			c.recordActivity(ctx, actor, "request.status_changed", requestID, fmt.Sprintf("status set to %s", status))
			return nil
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not update the request status",
	})
}

// ToggleRequestPin flips a request's pinned flag.
func (c *Core) ToggleRequestPin(ctx context.Context, requestID string) error {
	current, err := c.loadedRequest("request.toggle_pin", requestID)
	if err != nil {
		return err
	}

	updated := *current
	updated.Pinned = !current.Pinned
	updated.UpdatedAt = time.Now()

	return c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name:     "request.toggle_pin",
		OnMutate: func() func() { return c.swapRequest(&updated) },
		Mutate: func(ctx context.Context) error {
			return c.cfg.Docs.WriteDocument(ctx, docstore.RequestPath(requestID), models.EncodeRequest(&updated))
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not pin the request",
	})
}

// AddComment appends a comment to a request's thread.
func (c *Core) AddComment(ctx context.Context, requestID, body string) (*models.Comment, error) {
	if requestID == "" || body == "" {
		return nil, fault.Validation("comment.add", fmt.Errorf("request id and body are required"))
	}

	now := time.Now()
	comment := &models.Comment{
		CommentID: uuid.NewString(),
		RequestID: requestID,
		Author:    c.actorID(),
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name:     "comment.add",
		OnMutate: func() func() { return func() {} },
		Mutate: func(ctx context.Context) error {
			return c.cfg.Docs.WriteDocument(ctx, docstore.CommentPath(requestID, comment.CommentID), models.EncodeComment(comment))
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not post the comment",
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// CancelInvite marks a pending invite cancelled. Admin only; cancelling
// an already-cancelled invite is a no-op.
func (c *Core) CancelInvite(ctx context.Context, inviteID string) error {
	orgID, actor, err := c.requireAdmin("invite.cancel")
	if err != nil {
		return err
	}
	if inviteID == "" {
		return fault.Validation("invite.cancel", fmt.Errorf("invite id is empty"))
	}

	return c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name:     "invite.cancel",
		OnMutate: func() func() { return func() {} },
		Mutate: func(ctx context.Context) error {
			path := docstore.InvitePath(orgID, inviteID)
			doc, err := c.cfg.Docs.GetDocument(ctx, path)
			if err != nil {
				return err
			}
			inv := models.DecodeInvite(doc.Data)
			if inv.Status == models.InviteStatusCancelled {
				return nil
			}
			inv.Status = models.InviteStatusCancelled
			inv.UpdatedAt = time.Now()
			if err := c.cfg.Docs.WriteDocument(ctx, path, models.EncodeInvite(inv)); err != nil {
				return err
			}
			c.recordActivity(ctx, actor, "invite.cancelled", inviteID, fmt.Sprintf("invite for %s cancelled", inv.Email))
			return nil
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not cancel the invite",
	})
}

// UpdateMemberRole changes a member's role in the active organization.
// Admin only. When the viewer changes their own role the dashboard
// membership updates optimistically.
func (c *Core) UpdateMemberRole(ctx context.Context, principalID, role string) error {
	orgID, actor, err := c.requireAdmin("member.update_role")
	if err != nil {
		return err
	}
	if !validRoles[role] {
		return fault.Validation("member.update_role", fmt.Errorf("unknown role %q", role))
	}

	return c.exec.Execute(ctx, mutate.Mutation[func()]{
		Name: "member.update_role",
		OnMutate: func() func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.dash.Membership == nil || c.dash.Membership.PrincipalID != principalID {
				return func() {}
			}
			prior := c.dash.Membership
			updated := *prior
			updated.Role = role
			c.dash.Membership = &updated
			c.publishLocked()
			return func() {
				c.mu.Lock()
				c.dash.Membership = prior
				c.publishLocked()
				c.mu.Unlock()
			}
		},
		Mutate: func(ctx context.Context) error {
			path := docstore.MembershipPath(orgID, principalID)
			doc, err := c.cfg.Docs.GetDocument(ctx, path)
			if err != nil {
				return err
			}
			m := models.DecodeMembership(doc.Data)
			m.Role = role
			m.UpdatedAt = time.Now()
			if err := c.cfg.Docs.WriteDocument(ctx, path, models.EncodeMembership(m)); err != nil {
				return err
			}
			c.recordActivity(ctx, actor, "member.role_changed", principalID, fmt.Sprintf("role set to %s", role))
			return nil
		},
		OnRollback:   func(restore func()) { restore() },
		ErrorMessage: "could not change the member's role",
	})
}

// loadedRequest returns the dashboard's copy of a request.
func (c *Core) loadedRequest(op, requestID string) (*models.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.dash.Requests {
		if r.RequestID == requestID {
			return r, nil
		}
	}
	return nil, fault.NotFound(op, fmt.Errorf("request %s is not loaded", requestID))
}

// swapRequest replaces the dashboard's copy of a request and returns the
// restore closure. The replaced entry keeps its original pointer in the
// captured prior slice, so a rollback is an exact restore.
func (c *Core) swapRequest(updated *models.Request) func() {
	c.mu.Lock()
	prior := c.dash.Requests
	next := append([]*models.Request(nil), prior...)
	for i, r := range next {
		if r.RequestID == updated.RequestID {
			next[i] = updated
			break
		}
	}
	c.dash.Requests = next
	c.publishLocked()
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.dash.Requests = prior
		c.publishLocked()
		c.mu.Unlock()
	}
}

func (c *Core) requireAdmin(op string) (orgID, actor string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dash.Membership == nil || c.dash.Membership.Role != models.RoleAdmin {
		return "", "", fault.PermissionDenied(op, fault.ErrAccessDenied)
	}
	return c.dash.OrgID, c.dash.Membership.PrincipalID, nil
}

func (c *Core) actorID() string {
	if snap := c.cfg.Session.Snapshot(); snap.Profile != nil {
		return snap.Profile.PrincipalID
	}
	return ""
}

// recordActivity appends an audit record. Best effort: a failed activity
// write never fails the mutation it accompanies.
func (c *Core) recordActivity(ctx context.Context, actor, kind, subject, message string) {
	c.mu.Lock()
	orgID := c.dash.OrgID
	c.mu.Unlock()

	a := &models.Activity{
		ActivityID: uuid.NewString(),
		OrgID:      orgID,
		Actor:      actor,
		Kind:       kind,
		Subject:    subject,
		Message:    message,
		CreatedAt:  time.Now(),
	}
	if err := c.cfg.Docs.WriteDocument(ctx, docstore.ActivityPath(a.ActivityID), models.EncodeActivity(a)); err != nil {
		c.cfg.Logger.Warn().Err(err).Str("kind", kind).Msg("activity record failed")
	}
}
