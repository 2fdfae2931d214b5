package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/docstore/memory"
	"github.com/collabhq/portal/internal/identity"
	"github.com/collabhq/portal/internal/models"
	"github.com/collabhq/portal/internal/retry"
)

func testToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func fastTokenRetry() retry.Options {
	return retry.Options{MaxAttempts: 2, InitialDelay: time.Millisecond}
}

func newTestStore(t *testing.T, docs docstore.Store, cache ProfileCache, provider identity.Provider) *Store {
	t.Helper()
	s := New(Config{
		Provider:   provider,
		Docs:       docs,
		Cache:      cache,
		Logger:     zerolog.Nop(),
		TokenRetry: fastTokenRetry(),
	})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, s *Store, cond func(State) bool) State {
	t.Helper()
	var last State
	require.Eventually(t, func() bool {
		last = s.Snapshot()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestStore_SignInLoadsLiveProfile(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	cache := NewMemoryCache()
	provider := identity.NewStaticProvider()

	profile := &models.Principal{
		PrincipalID: "u1",
		Email:       "u1@example.com",
		DisplayName: "Ada",
		AccountKind: models.AccountKindClient,
		OrgIDs:      []string{"org-1"},
	}
	require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))

	s := newTestStore(t, docs, cache, provider)
	require.NoError(t, s.Start(ctx))

	provider.SignIn(identity.AuthState{PrincipalID: "u1", Email: "u1@example.com"}, testToken(t, "u1"))

	state := waitFor(t, s, func(st State) bool {
		return st.Profile != nil && !st.Loading
	})
	require.True(t, state.Authenticated)
	require.Equal(t, "Ada", state.Profile.DisplayName)
	require.Equal(t, []string{"org-1"}, state.Profile.OrgIDs)

	t.Run("live profile is written to cache", func(t *testing.T) {
		require.Eventually(t, func() bool {
			cached, err := cache.Load(ctx, "u1")
			return err == nil && cached.Principal.DisplayName == "Ada"
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("profile edits stream into state", func(t *testing.T) {
		profile.DisplayName = "Ada L."
		require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))
		waitFor(t, s, func(st State) bool {
			return st.Profile != nil && st.Profile.DisplayName == "Ada L."
		})
	})
}

func TestStore_CachedProfileHydratesBeforeLive(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	cache := NewMemoryCache()
	provider := identity.NewStaticProvider()

	// Cached profile exists; the profile document does not (e.g. cold
	// start against a lagging backend).
	cached := &models.Principal{
		PrincipalID: "u1",
		DisplayName: "Cached Ada",
		AccountKind: models.AccountKindAgency,
	}
	require.NoError(t, cache.Store(ctx, "u1", cached))

	s := newTestStore(t, docs, cache, provider)
	require.NoError(t, s.Start(ctx))

	provider.SignIn(identity.AuthState{PrincipalID: "u1"}, testToken(t, "u1"))

	state := waitFor(t, s, func(st State) bool { return st.Profile != nil })
	require.Equal(t, "Cached Ada", state.Profile.DisplayName)
	require.Equal(t, models.AccountKindAgency, state.AccountKind())
}

func TestStore_TokenFailureFallsBackToMinimalProfile(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	provider := identity.NewStaticProvider()

	s := newTestStore(t, docs, NewMemoryCache(), provider)
	require.NoError(t, s.Start(ctx))

	provider.FailTokens(errors.New("token service down"))
	provider.SignIn(identity.AuthState{PrincipalID: "u1", Email: "u1@example.com", DisplayName: "Ada"}, testToken(t, "u1"))

	state := waitFor(t, s, func(st State) bool {
		return st.Profile != nil && !st.Loading
	})

	// The user is not blocked: a minimal profile synthesized from the
	// auth principal, with the failure recorded as non-fatal.
	require.True(t, state.Authenticated)
	require.Equal(t, "u1", state.Profile.PrincipalID)
	require.Equal(t, models.AccountKindClient, state.Profile.AccountKind)
	require.Error(t, state.LastErr)
}

func TestStore_SignOutClearsStateAndCache(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	cache := NewMemoryCache()
	provider := identity.NewStaticProvider()

	profile := &models.Principal{PrincipalID: "u1", DisplayName: "Ada"}
	require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))

	s := newTestStore(t, docs, cache, provider)
	require.NoError(t, s.Start(ctx))

	provider.SignIn(identity.AuthState{PrincipalID: "u1"}, testToken(t, "u1"))
	waitFor(t, s, func(st State) bool { return st.Profile != nil && !st.Loading })

	provider.SignOut()
	state := waitFor(t, s, func(st State) bool { return !st.Authenticated })
	require.Nil(t, state.Profile)
	require.False(t, s.Active())

	_, err := cache.Load(ctx, "u1")
	require.ErrorIs(t, err, ErrCacheMiss)

	t.Run("no listener outlives sign-out", func(t *testing.T) {
		profile.DisplayName = "Post-signout edit"
		require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))

		time.Sleep(50 * time.Millisecond)
		require.Nil(t, s.Snapshot().Profile)
	})
}

func TestStore_TokenReady(t *testing.T) {
	provider := identity.NewStaticProvider()
	s := newTestStore(t, memory.NewStore(), NewMemoryCache(), provider)

	t.Run("fails when signed out", func(t *testing.T) {
		err := s.TokenReady(context.Background())
		require.Error(t, err)
	})

	t.Run("succeeds with a fresh token", func(t *testing.T) {
		provider.SignIn(identity.AuthState{PrincipalID: "u1"}, testToken(t, "u1"))
		require.NoError(t, s.TokenReady(context.Background()))
	})
}

// erroringDocs wraps the memory store and exposes the profile watcher's
// error callback for fault injection.
type erroringDocs struct {
	*memory.Store
	onError docstore.ErrorFunc
}

func (e *erroringDocs) SubscribeToDocument(ctx context.Context, path string, fn func(*docstore.Document), onError docstore.ErrorFunc) (func(), error) {
	e.onError = onError
	return e.Store.SubscribeToDocument(ctx, path, fn, onError)
}

func TestStore_SubscriptionErrorKeepsLastKnownProfile(t *testing.T) {
	ctx := context.Background()
	docs := &erroringDocs{Store: memory.NewStore()}
	provider := identity.NewStaticProvider()

	profile := &models.Principal{PrincipalID: "u1", DisplayName: "Ada"}
	require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))

	s := newTestStore(t, docs, NewMemoryCache(), provider)
	require.NoError(t, s.Start(ctx))

	provider.SignIn(identity.AuthState{PrincipalID: "u1"}, testToken(t, "u1"))
	waitFor(t, s, func(st State) bool { return st.Profile != nil && !st.Loading })

	// Permission revoked mid-session: the error is recorded but the
	// last-known profile is kept rather than wiping the UI.
	require.NotNil(t, docs.onError)
	docs.onError(errors.New("permission revoked"))

	state := waitFor(t, s, func(st State) bool { return st.LastErr != nil })
	require.NotNil(t, state.Profile)
	require.Equal(t, "Ada", state.Profile.DisplayName)
}

func TestStore_WatcherDeliveryIsOrdered(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewStore()
	provider := identity.NewStaticProvider()

	profile := &models.Principal{PrincipalID: "u1", DisplayName: "v0"}
	require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))

	s := newTestStore(t, docs, NewMemoryCache(), provider)
	require.NoError(t, s.Start(ctx))

	var mu sync.Mutex
	var seen []string
	cancel := s.OnChange(func(st State) {
		if st.Profile == nil {
			return
		}
		mu.Lock()
		seen = append(seen, st.Profile.DisplayName)
		mu.Unlock()
	})
	defer cancel()

	provider.SignIn(identity.AuthState{PrincipalID: "u1"}, testToken(t, "u1"))
	waitFor(t, s, func(st State) bool { return st.Profile != nil && !st.Loading })

	const edits = 25
	for i := 1; i <= edits; i++ {
		profile.DisplayName = fmt.Sprintf("v%d", i)
		require.NoError(t, docs.WriteDocument(ctx, docstore.ProfilePath("u1"), models.EncodePrincipal(profile)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == fmt.Sprintf("v%d", edits)
	}, 2*time.Second, 5*time.Millisecond, "last delivered state must be the newest")

	// Watchers replace state wholesale, so a delivery must never carry an
	// older state than the one before it.
	mu.Lock()
	defer mu.Unlock()
	last := -1
	for _, name := range seen {
		var v int
		_, err := fmt.Sscanf(name, "v%d", &v)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, last, "state versions went backwards: %v", seen)
		last = v
	}
}

func TestCachedProfile_Stale(t *testing.T) {
	now := time.Now()
	fresh := &CachedProfile{SavedAt: now.Add(-30 * time.Minute)}
	stale := &CachedProfile{SavedAt: now.Add(-2 * time.Hour)}

	require.False(t, fresh.Stale(now))
	require.True(t, stale.Stale(now))
}
