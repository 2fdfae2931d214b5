package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/identity"
	"github.com/collabhq/portal/internal/models"
	"github.com/collabhq/portal/internal/retry"
	"github.com/collabhq/portal/internal/telemetry"
)

// State is the session store's published view of the current identity.
type State struct {
	Auth          identity.AuthState
	Profile       *models.Principal
	Loading       bool
	Authenticated bool

	// LastErr records non-fatal local failures (token acquisition,
	// subscription hiccups). The last-known profile is kept rather than
	// wiping the UI.
	LastErr error
}

// AccountKind returns the profile's account kind, defaulting to client
// while the profile has not loaded.
func (s State) AccountKind() string {
	if s.Profile == nil {
		return models.AccountKindClient
	}
	return s.Profile.AccountKind
}

// Config wires the session store's collaborators.
type Config struct {
	Provider identity.Provider
	Docs     docstore.Store
	Cache    ProfileCache
	Logger   zerolog.Logger

	// TokenRetry controls retry of fresh-token acquisition on sign-in.
	// Zero value uses the retry package defaults.
	TokenRetry retry.Options
}

// Store tracks the authenticated principal and mirrors their profile
// document. Constructed once at app start, torn down at Close; injected
// explicitly rather than held in module-level state.
type Store struct {
	cfg Config

	mu          sync.Mutex
	state       State
	watchers    map[int]func(State)
	nextWatcher int
	pending     []func()
	delivering  bool

	// epoch invalidates in-flight async session setup. Incremented on
	// every sign-in and sign-out transition; pending setup checks it
	// before attaching the live listener.
	epoch         int
	signingOut    bool
	cancelAuth    func()
	cancelProfile func()
}

// New creates a session store. Call Start to begin tracking auth state.
func New(cfg Config) *Store {
	return &Store{
		cfg:      cfg,
		watchers: make(map[int]func(State)),
	}
}

// Start hooks into the auth provider and processes the current sign-in
// state.
func (s *Store) Start(ctx context.Context) error {
	s.cancelAuth = s.cfg.Provider.OnStateChange(func(st identity.AuthState) {
		s.handleAuthChange(ctx, st)
	})

	current, err := s.cfg.Provider.CurrentState(ctx)
	if err != nil {
		return err
	}
	s.handleAuthChange(ctx, current)
	return nil
}

// Close detaches from the auth provider and disposes any live profile
// subscription.
func (s *Store) Close() {
	if s.cancelAuth != nil {
		s.cancelAuth()
	}

	s.mu.Lock()
	s.epoch++
	cancelProfile := s.cancelProfile
	s.cancelProfile = nil
	s.mu.Unlock()

	if cancelProfile != nil {
		cancelProfile()
	}
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers a state watcher; it fires on every published change.
// The returned cancel is safe to call more than once.
func (s *Store) OnChange(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Active reports whether the session is signed in and not mid-sign-out.
// Live adapters use this to decide whether a permission denial is an
// expected transient state.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authenticated && !s.signingOut
}

// TokenReady blocks until a fresh, unexpired token is available. Every
// tenant-scoped read waits on this to avoid permission-denied races on
// cold start.
func (s *Store) TokenReady(ctx context.Context) error {
	_, err := retry.Do(ctx, func() (string, error) {
		token, err := s.cfg.Provider.FreshToken(ctx)
		if err != nil {
			return "", err
		}
		return token, identity.CheckTokenReady(token, time.Now())
	}, s.cfg.TokenRetry)
	return err
}

func (s *Store) handleAuthChange(ctx context.Context, st identity.AuthState) {
	if st.SignedIn {
		s.beginSession(ctx, st)
	} else {
		s.endSession(ctx)
	}
}

// beginSession publishes cached identity synchronously, then upgrades to
// the live profile subscription once a fresh token is available.
func (s *Store) beginSession(ctx context.Context, st identity.AuthState) {
	s.mu.Lock()
	s.epoch++
	myEpoch := s.epoch
	s.signingOut = false
	oldCancel := s.cancelProfile
	s.cancelProfile = nil

	s.state = State{
		Auth:          st,
		Loading:       true,
		Authenticated: true,
	}

	// Hydrate from the short-lived cache so the UI renders immediately;
	// the live subscription supersedes this.
	if cached, err := s.cfg.Cache.Load(ctx, st.PrincipalID); err == nil {
		if !cached.Stale(time.Now()) && cached.Principal.PrincipalID == st.PrincipalID {
			s.state.Profile = cached.Principal
		}
	}
	s.publishLocked()
	s.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	telemetry.GetMetrics().SignInsTotal.Add(ctx, 1)

	go s.attachProfile(ctx, st, myEpoch)
}

// attachProfile waits for token readiness and opens the profile document
// subscription. On token failure the session degrades to a minimal profile
// synthesized from the auth principal; the user is not blocked.
func (s *Store) attachProfile(ctx context.Context, st identity.AuthState, myEpoch int) {
	if err := s.TokenReady(ctx); err != nil {
		s.cfg.Logger.Warn().Err(err).
			Str("principal_id", st.PrincipalID).
			Msg("token acquisition failed, using minimal profile")

		s.mu.Lock()
		if s.epoch == myEpoch {
			if s.state.Profile == nil {
				s.state.Profile = models.MinimalPrincipal(st.PrincipalID, st.Email, st.DisplayName)
			}
			s.state.Loading = false
			s.state.LastErr = err
			s.publishLocked()
		}
		s.mu.Unlock()
		return
	}

	// The sign-in may have been superseded while we waited for the token;
	// check before attaching the live listener.
	s.mu.Lock()
	if s.epoch != myEpoch {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	path := docstore.ProfilePath(st.PrincipalID)
	cancel, err := s.cfg.Docs.SubscribeToDocument(ctx, path,
		func(doc *docstore.Document) {
			s.handleProfileDoc(ctx, st, myEpoch, doc)
		},
		func(err error) {
			// Permission revoked mid-session or a read hiccup: keep the
			// last-known profile, record the error.
			s.cfg.Logger.Warn().Err(err).Str("path", path).Msg("profile subscription error")
			s.mu.Lock()
			if s.epoch == myEpoch {
				s.state.LastErr = err
				s.publishLocked()
			}
			s.mu.Unlock()
		},
	)
	if err != nil {
		s.mu.Lock()
		if s.epoch == myEpoch {
			s.state.Loading = false
			s.state.LastErr = err
			s.publishLocked()
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.epoch != myEpoch {
		// Superseded while subscribing; dispose immediately.
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelProfile = cancel
	s.mu.Unlock()
}

func (s *Store) handleProfileDoc(ctx context.Context, st identity.AuthState, myEpoch int, doc *docstore.Document) {
	var profile *models.Principal
	if doc != nil {
		profile = models.DecodePrincipal(doc.Data)
	}

	s.mu.Lock()
	if s.epoch != myEpoch {
		s.mu.Unlock()
		return
	}
	if profile == nil {
		// Profile document missing (e.g. onboarding write still in
		// flight). Keep whatever we have; synthesize if nothing.
		if s.state.Profile == nil {
			s.state.Profile = models.MinimalPrincipal(st.PrincipalID, st.Email, st.DisplayName)
		}
		s.state.Loading = false
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	s.state.Profile = profile
	s.state.Loading = false
	s.state.LastErr = nil
	s.publishLocked()
	s.mu.Unlock()

	// Single-writer: only the session store touches the profile cache.
	if err := s.cfg.Cache.Store(ctx, st.PrincipalID, profile); err != nil {
		s.cfg.Logger.Debug().Err(err).Msg("profile cache write failed")
	}
	telemetry.GetMetrics().ProfileSnapshotsTotal.Add(ctx, 1)
}

// endSession clears cache and live state synchronously; no live
// subscription outlives a sign-out transition.
func (s *Store) endSession(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.signingOut = true
	principalID := s.state.Auth.PrincipalID
	cancelProfile := s.cancelProfile
	s.cancelProfile = nil
	s.mu.Unlock()

	if cancelProfile != nil {
		cancelProfile()
	}
	if principalID != "" {
		if err := s.cfg.Cache.Clear(ctx, principalID); err != nil {
			s.cfg.Logger.Debug().Err(err).Msg("profile cache clear failed")
		}
	}

	s.mu.Lock()
	s.state = State{}
	s.signingOut = false
	s.publishLocked()
	s.mu.Unlock()

	telemetry.GetMetrics().SignOutsTotal.Add(ctx, 1)
}

// publishLocked notifies watchers with the current state. Must be called
// with the lock held. Delivery is asynchronous so watchers may call back
// into the store, but publishes drain through a single dispatcher in
// publish order: a watcher never sees an older state after a newer one.
func (s *Store) publishLocked() {
	state := s.state
	cbs := make([]func(State), 0, len(s.watchers))
	for _, cb := range s.watchers {
		cbs = append(cbs, cb)
	}

	s.pending = append(s.pending, func() {
		for _, cb := range cbs {
			cb(state)
		}
	})
	if s.delivering {
		return
	}
	s.delivering = true
	go s.drainPending()
}

func (s *Store) drainPending() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		next()
	}
}
