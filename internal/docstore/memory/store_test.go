package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
)

func TestStore_GetDocument(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	t.Run("missing document returns not-found fault", func(t *testing.T) {
		_, err := st.GetDocument(ctx, "users/absent")
		require.Error(t, err)
		require.True(t, fault.IsNotFound(err))
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("written document is readable", func(t *testing.T) {
		err := st.WriteDocument(ctx, "users/u1", map[string]any{"email": "u1@example.com"})
		require.NoError(t, err)

		doc, err := st.GetDocument(ctx, "users/u1")
		require.NoError(t, err)
		require.Equal(t, "u1@example.com", doc.Data["email"])
	})

	t.Run("returned document is a clone", func(t *testing.T) {
		doc, err := st.GetDocument(ctx, "users/u1")
		require.NoError(t, err)
		doc.Data["email"] = "mutated"

		again, err := st.GetDocument(ctx, "users/u1")
		require.NoError(t, err)
		require.Equal(t, "u1@example.com", again.Data["email"])
	})
}

func TestStore_SubscribeToDocument(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	var got []*docstore.Document
	cancel, err := st.SubscribeToDocument(ctx, "users/u1", func(d *docstore.Document) {
		got = append(got, d)
	}, nil)
	require.NoError(t, err)
	defer cancel()

	// Initial delivery is nil for a missing document.
	require.Len(t, got, 1)
	require.Nil(t, got[0])

	require.NoError(t, st.WriteDocument(ctx, "users/u1", map[string]any{"name": "Ada"}))
	require.Len(t, got, 2)
	require.Equal(t, "Ada", got[1].Data["name"])

	require.NoError(t, st.DeleteDocument(ctx, "users/u1"))
	require.Len(t, got, 3)
	require.Nil(t, got[2])

	cancel()
	require.NoError(t, st.WriteDocument(ctx, "users/u1", map[string]any{"name": "Bob"}))
	require.Len(t, got, 3, "no delivery after cancel")

	// Cancel is safe to call again.
	cancel()
}

func TestStore_SubscribeToQuery(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	base := time.Now()
	write := func(id, orgID string, createdAt time.Time) {
		require.NoError(t, st.WriteDocument(ctx, "requests/"+id, map[string]any{
			"org_id":     orgID,
			"created_at": createdAt,
		}))
	}

	write("r1", "org-1", base.Add(1*time.Minute))
	write("r2", "org-1", base.Add(2*time.Minute))
	write("r3", "org-2", base.Add(3*time.Minute))

	q := docstore.Query{
		Collection: "requests",
		Filters:    []docstore.Filter{{Field: "org_id", Value: "org-1"}},
		OrderBy:    "created_at",
		Descending: true,
	}

	var snaps []docstore.Snapshot
	cancel, err := st.SubscribeToQuery(ctx, q, func(s docstore.Snapshot) {
		snaps = append(snaps, s)
	}, nil)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, snaps, 1)
	require.Len(t, snaps[0], 2)
	require.Equal(t, "requests/r2", snaps[0][0].Path, "descending by created_at")
	require.Equal(t, "requests/r1", snaps[0][1].Path)

	t.Run("matching write pushes a fresh snapshot", func(t *testing.T) {
		write("r4", "org-1", base.Add(4*time.Minute))
		require.Len(t, snaps, 2)
		require.Len(t, snaps[1], 3)
		require.Equal(t, "requests/r4", snaps[1][0].Path)
	})

	t.Run("non-matching write in same collection still re-evaluates", func(t *testing.T) {
		write("r5", "org-2", base.Add(5*time.Minute))
		require.Len(t, snaps, 3)
		require.Len(t, snaps[2], 3, "org-2 write does not enter org-1 snapshot")
	})

	t.Run("tenant isolation", func(t *testing.T) {
		for _, snap := range snaps {
			for _, doc := range snap {
				require.Equal(t, "org-1", doc.Data["org_id"])
			}
		}
	})

	t.Run("delete pushes a shrunken snapshot", func(t *testing.T) {
		require.NoError(t, st.DeleteDocument(ctx, "requests/r4"))
		last := snaps[len(snaps)-1]
		require.Len(t, last, 2)
	})
}

func TestStore_QueryLimit(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, st.WriteDocument(ctx, "notifications/"+id, map[string]any{
			"principal_id": "u1",
			"created_at":   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	var last docstore.Snapshot
	cancel, err := st.SubscribeToQuery(ctx, docstore.Query{
		Collection: "notifications",
		Filters:    []docstore.Filter{{Field: "principal_id", Value: "u1"}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      2,
	}, func(s docstore.Snapshot) { last = s }, nil)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, last, 2)
	require.Equal(t, "notifications/n3", last[0].Path)
}

// Encoded timestamps order textually, so documents written in the same
// second must still sort by their fractional part.
func TestStore_QueryOrdersSameSecondTimestamps(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	sec := time.Date(2026, 9, 1, 12, 0, 1, 0, time.UTC)
	for _, r := range []*models.Request{
		{RequestID: "r-whole", OrgID: "org-1", CreatedAt: sec},
		{RequestID: "r-frac", OrgID: "org-1", CreatedAt: sec.Add(500 * time.Millisecond)},
	} {
		require.NoError(t, st.WriteDocument(ctx, docstore.RequestPath(r.RequestID), models.EncodeRequest(r)))
	}

	var last docstore.Snapshot
	cancel, err := st.SubscribeToQuery(ctx, docstore.Query{
		Collection: docstore.RequestsCollection,
		OrderBy:    "created_at",
		Descending: true,
	}, func(s docstore.Snapshot) { last = s }, nil)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, last, 2)
	require.Equal(t, "requests/r-frac", last[0].Path, "sub-second newer document sorts first")
	require.Equal(t, "requests/r-whole", last[1].Path)
}

func TestStore_SubcollectionQueriesAreScoped(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.WriteDocument(ctx, "requests/r1/comments/c1", map[string]any{"body": "first"}))
	require.NoError(t, st.WriteDocument(ctx, "requests/r2/comments/c2", map[string]any{"body": "other"}))

	var last docstore.Snapshot
	cancel, err := st.SubscribeToQuery(ctx, docstore.Query{
		Collection: docstore.CommentsCollection("r1"),
	}, func(s docstore.Snapshot) { last = s }, nil)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, last, 1)
	require.Equal(t, "requests/r1/comments/c1", last[0].Path)
}

func TestStore_IndependentSubscriptions(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	var requests, activity int
	cancelReq, err := st.SubscribeToQuery(ctx, docstore.Query{Collection: "requests"},
		func(docstore.Snapshot) { requests++ }, nil)
	require.NoError(t, err)

	cancelAct, err := st.SubscribeToQuery(ctx, docstore.Query{Collection: "activity"},
		func(docstore.Snapshot) { activity++ }, nil)
	require.NoError(t, err)
	defer cancelAct()

	require.NoError(t, st.WriteDocument(ctx, "requests/r1", map[string]any{}))
	require.Equal(t, 2, requests)
	require.Equal(t, 1, activity, "request write does not touch activity watcher")

	// Cancelling one subscription must not cancel the other.
	cancelReq()
	require.NoError(t, st.WriteDocument(ctx, "activity/a1", map[string]any{}))
	require.Equal(t, 2, requests)
	require.Equal(t, 2, activity)
}
