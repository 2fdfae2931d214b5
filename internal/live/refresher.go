package live

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/telemetry"
)

// DefaultRefreshInterval is the polling cadence used when the backend
// cannot push changes.
const DefaultRefreshInterval = 30 * time.Second

// Refresher periodically invokes a refresh callback as a fallback for
// deployments whose store lacks a change feed. Adapters still deliver
// the initial snapshot immediately; the refresher only bounds staleness.
type Refresher struct {
	interval time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	stop func()
}

// NewRefresher creates a refresher. A non-positive interval uses
// DefaultRefreshInterval.
func NewRefresher(interval time.Duration, logger zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{interval: interval, logger: logger}
}

// Start begins ticking; fn runs on every tick until Stop or context
// cancellation. Calling Start on a running refresher restarts it.
func (r *Refresher) Start(ctx context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.stop != nil {
		r.stop()
	}
	r.stop = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				telemetry.GetMetrics().RefreshTicksTotal.Add(ctx, 1)
				r.logger.Debug().Msg("refresh tick")
				fn(ctx)
			}
		}
	}()
}

// Stop halts ticking. Safe to call more than once.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}
