package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/docstore/memory"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
)

// countingDocs counts membership writes going through the store.
type countingDocs struct {
	docstore.Store
	writes atomic.Int64
}

func (c *countingDocs) WriteDocument(ctx context.Context, path string, data map[string]any) error {
	c.writes.Add(1)
	return c.Store.WriteDocument(ctx, path, data)
}

func TestEnsureMembership_ExistingRecordReturned(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	g := New(docs, zerolog.Nop())

	existing := &models.Membership{
		OrgID:       "org-1",
		PrincipalID: "u1",
		Role:        models.RoleAdmin,
	}
	require.NoError(t, docs.WriteDocument(ctx, docstore.MembershipPath("org-1", "u1"), models.EncodeMembership(existing)))

	p := &models.Principal{PrincipalID: "u1", OrgIDs: []string{"org-1"}}
	m, err := g.EnsureMembership(ctx, "org-1", p)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, m.Role, "existing role is never downgraded")
}

func TestEnsureMembership_HealsMissingRecord(t *testing.T) {
	ctx := context.Background()
	docs := &countingDocs{Store: memory.NewStore()}
	g := New(docs, zerolog.Nop())

	// org-42 listed on the profile, but the membership document never
	// landed (partial onboarding write).
	p := &models.Principal{
		PrincipalID: "u1",
		Email:       "u1@example.com",
		DisplayName: "Ada",
		OrgIDs:      []string{"org-42"},
	}

	m, err := g.EnsureMembership(ctx, "org-42", p)
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, m.Role)
	require.Equal(t, "u1@example.com", m.Email)
	require.Equal(t, int64(1), docs.writes.Load())

	t.Run("subsequent call returns the record without a second write", func(t *testing.T) {
		again, err := g.EnsureMembership(ctx, "org-42", p)
		require.NoError(t, err)
		require.Equal(t, models.RoleMember, again.Role)
		require.Equal(t, int64(1), docs.writes.Load())
	})
}

func TestEnsureMembership_AgencyHealsUnlistedOrg(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	g := New(docs, zerolog.Nop())

	p := &models.Principal{
		PrincipalID: "agent-1",
		AccountKind: models.AccountKindAgency,
	}

	m, err := g.EnsureMembership(ctx, "org-7", p)
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, m.Role)
}

func TestEnsureMembership_DeniesUnlistedNonAgency(t *testing.T) {
	ctx := context.Background()
	docs := &countingDocs{Store: memory.NewStore()}
	g := New(docs, zerolog.Nop())

	p := &models.Principal{PrincipalID: "u1", OrgIDs: []string{"org-1"}}

	_, err := g.EnsureMembership(ctx, "org-9", p)
	require.Error(t, err)
	require.True(t, fault.IsPermissionDenied(err))
	require.ErrorIs(t, err, fault.ErrAccessDenied)
	require.Equal(t, int64(0), docs.writes.Load(), "denial writes nothing")
}

func TestEnsureMembership_Validation(t *testing.T) {
	g := New(memory.NewStore(), zerolog.Nop())
	ctx := context.Background()

	_, err := g.EnsureMembership(ctx, "", &models.Principal{PrincipalID: "u1"})
	require.True(t, fault.IsValidation(err))

	_, err = g.EnsureMembership(ctx, "org-1", nil)
	require.True(t, fault.IsValidation(err))
}

func TestEnsureMembership_ConcurrentCallsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	g := New(docs, zerolog.Nop())

	p := &models.Principal{PrincipalID: "u1", OrgIDs: []string{"org-1"}}

	const n = 16
	var wg sync.WaitGroup
	roles := make([]string, n)
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := g.EnsureMembership(ctx, "org-1", p)
			errs[i] = err
			if m != nil {
				roles[i] = m.Role
			}
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, models.RoleMember, roles[i], "every call sees the same role")
	}

	// Exactly one record exists at the composite path.
	doc, err := docs.GetDocument(ctx, docstore.MembershipPath("org-1", "u1"))
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, models.DecodeMembership(doc.Data).Role)
}
