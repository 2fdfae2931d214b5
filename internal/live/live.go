// Package live manages realtime collection subscriptions for the portal
// UI. An adapter owns one query subscription end to end: it waits for
// token readiness before attaching, decodes raw documents into typed
// snapshots, and degrades to an empty snapshot on read failures instead
// of surfacing errors to every consumer.
package live

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/telemetry"
)

// Session is the slice of the session store adapters depend on.
type Session interface {
	// TokenReady blocks until a fresh token is available.
	TokenReady(ctx context.Context) error

	// Active reports whether the session is signed in and not mid-sign-out.
	Active() bool
}

// Adapter binds a live query to a typed snapshot consumer.
type Adapter[T any] struct {
	docs   docstore.Store
	sess   Session
	logger zerolog.Logger
	query  docstore.Query
	decode func(map[string]any) T
	onData func([]T)

	mu       sync.Mutex
	disposed bool
	cancel   func()
}

// NewAdapter creates an adapter; Start attaches it.
func NewAdapter[T any](docs docstore.Store, sess Session, logger zerolog.Logger, q docstore.Query, decode func(map[string]any) T, onData func([]T)) *Adapter[T] {
	return &Adapter[T]{
		docs:   docs,
		sess:   sess,
		logger: logger,
		query:  q,
		decode: decode,
		onData: onData,
	}
}

// Start attaches the subscription asynchronously. Attachment waits for a
// fresh token first, so a cold-started page never races the auth
// handshake into a guaranteed permission denial. A Dispose issued while
// the token wait is in flight prevents the attach entirely.
func (a *Adapter[T]) Start(ctx context.Context) {
	go a.attach(ctx)
}

func (a *Adapter[T]) attach(ctx context.Context) {
	if err := a.sess.TokenReady(ctx); err != nil {
		a.handleError(ctx, err)
		return
	}

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	cancel, err := a.docs.SubscribeToQuery(ctx, a.query,
		func(snap docstore.Snapshot) {
			a.deliver(ctx, snap)
		},
		func(err error) {
			a.handleError(ctx, err)
		},
	)
	if err != nil {
		a.handleError(ctx, err)
		return
	}

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		cancel()
		return
	}
	a.cancel = cancel
	a.mu.Unlock()

	telemetry.GetMetrics().ActiveSubscriptions.Add(ctx, 1)
}

func (a *Adapter[T]) deliver(ctx context.Context, snap docstore.Snapshot) {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	items := make([]T, 0, len(snap))
	for _, doc := range snap {
		items = append(items, a.decode(doc.Data))
	}
	a.onData(items)
	telemetry.GetMetrics().SnapshotsDeliveredTotal.Add(ctx, 1)
}

// handleError degrades rather than propagates. A permission denial while
// the session is inactive is the expected teardown race at sign-out and
// is suppressed entirely; everything else is logged and the consumer
// gets an empty snapshot so stale tenant data never lingers on screen.
func (a *Adapter[T]) handleError(ctx context.Context, err error) {
	a.mu.Lock()
	disposed := a.disposed
	a.mu.Unlock()
	if disposed {
		return
	}

	if fault.IsPermissionDenied(err) && !a.sess.Active() {
		a.logger.Debug().Err(err).
			Str("collection", a.query.Collection).
			Msg("suppressed permission denial during sign-out")
		return
	}

	telemetry.GetMetrics().SubscriptionErrorsTotal.Add(ctx, 1)
	a.logger.Warn().Err(err).
		Str("collection", a.query.Collection).
		Msg("subscription error, delivering empty snapshot")
	a.onData([]T{})
}

// Dispose detaches the subscription. Safe to call more than once, and
// safe to call before the attach has completed.
func (a *Adapter[T]) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		telemetry.GetMetrics().ActiveSubscriptions.Add(context.Background(), -1)
	}
}
