package live

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Disposable is the teardown handle the hub tracks per adapter.
type Disposable interface {
	Dispose()
}

// Factory builds the adapter set for a scope (an organization id) and
// starts them.
type Factory func(ctx context.Context, scope string) []Disposable

// Hub owns the adapter set for the active scope. Switching scope
// disposes every adapter before the replacement set attaches, so two
// tenants' subscriptions never overlap.
type Hub struct {
	factory Factory
	logger  zerolog.Logger

	mu       sync.Mutex
	scope    string
	adapters []Disposable
	closed   bool
}

// NewHub creates a hub with no active scope.
func NewHub(factory Factory, logger zerolog.Logger) *Hub {
	return &Hub{factory: factory, logger: logger}
}

// Scope returns the active scope, or "" when none.
func (h *Hub) Scope() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scope
}

// SwitchScope tears down the current adapter set and builds one for
// scope. Switching to the already-active scope is a no-op.
func (h *Hub) SwitchScope(ctx context.Context, scope string) {
	h.mu.Lock()
	if h.closed || h.scope == scope {
		h.mu.Unlock()
		return
	}
	old := h.adapters
	h.scope = scope
	h.adapters = nil
	h.mu.Unlock()

	for _, a := range old {
		a.Dispose()
	}

	if scope == "" {
		return
	}

	adapters := h.factory(ctx, scope)

	h.mu.Lock()
	if h.closed || h.scope != scope {
		// Superseded while building; tear the new set down.
		h.mu.Unlock()
		for _, a := range adapters {
			a.Dispose()
		}
		return
	}
	h.adapters = adapters
	h.mu.Unlock()

	h.logger.Info().Str("org_id", scope).Int("adapters", len(adapters)).Msg("subscriptions attached")
}

// Close disposes every adapter and rejects further switches. Safe to
// call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	old := h.adapters
	h.adapters = nil
	h.scope = ""
	h.mu.Unlock()

	for _, a := range old {
		a.Dispose()
	}
}
