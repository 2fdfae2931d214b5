// Package guard verifies that the resolved principal holds a membership
// record for the resolved organization, and heals the record when it is
// missing but expected. Membership creation and the profile's org-list
// update are separate writes with no transaction around them; the guard
// repairs the window where one succeeded and the other did not.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
	"github.com/collabhq/portal/internal/telemetry"
)

// Guard checks and heals memberships against the document store.
type Guard struct {
	docs   docstore.Store
	logger zerolog.Logger
}

// New creates a membership guard.
func New(docs docstore.Store, logger zerolog.Logger) *Guard {
	return &Guard{docs: docs, logger: logger}
}

// EnsureMembership returns the principal's membership for orgID, creating
// it with the default role when it is missing but the organization is
// listed on the profile (or the principal is an agency account). The
// membership path is a deterministic composite of {orgID, principalID},
// so concurrent invocations racing to create the same record are
// harmless: last write wins and no duplicate can exist.
//
// Must complete (or deny) before any tenant-scoped subscription is
// established, to avoid a window of guaranteed permission-denied reads.
func (g *Guard) EnsureMembership(ctx context.Context, orgID string, p *models.Principal) (*models.Membership, error) {
	if orgID == "" {
		return nil, fault.Validation("guard.ensure", fmt.Errorf("organization id is empty"))
	}
	if p == nil || p.PrincipalID == "" {
		return nil, fault.Validation("guard.ensure", fmt.Errorf("no principal"))
	}

	path := docstore.MembershipPath(orgID, p.PrincipalID)

	doc, err := g.docs.GetDocument(ctx, path)
	if err == nil {
		return models.DecodeMembership(doc.Data), nil
	}
	if !fault.IsNotFound(err) {
		return nil, err
	}

	if !p.BelongsTo(orgID) && !p.IsAgency() {
		telemetry.GetMetrics().AccessDeniedTotal.Add(ctx, 1)
		g.logger.Warn().
			Str("org_id", orgID).
			Str("principal_id", p.PrincipalID).
			Msg("membership missing and not healable")
		return nil, fault.PermissionDenied("guard.ensure", fault.ErrAccessDenied)
	}

	now := time.Now()
	m := &models.Membership{
		OrgID:       orgID,
		PrincipalID: p.PrincipalID,
		Role:        models.RoleMember,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.docs.WriteDocument(ctx, path, models.EncodeMembership(m)); err != nil {
		return nil, err
	}

	telemetry.GetMetrics().MembershipsHealedTotal.Add(ctx, 1)
	g.logger.Info().
		Str("org_id", orgID).
		Str("principal_id", p.PrincipalID).
		Str("role", m.Role).
		Msg("healed missing membership")

	return m, nil
}
