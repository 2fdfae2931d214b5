// Package mutate runs optimistic mutations: the local view is updated
// immediately, the remote write follows, and on failure the local view
// is restored from the captured prior value and the user is notified.
package mutate

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/retry"
	"github.com/collabhq/portal/internal/telemetry"
)

// ErrBusy rejects a mutation while another is still in flight on the
// same executor.
var ErrBusy = errors.New("mutation already in flight")

// Notifier surfaces mutation outcomes to the user.
type Notifier interface {
	Notify(ctx context.Context, kind, message string)
}

// Notification kinds.
const (
	NotifyError   = "error"
	NotifySuccess = "success"
)

// NotifyFunc adapts a function to the Notifier interface.
type NotifyFunc func(ctx context.Context, kind, message string)

func (f NotifyFunc) Notify(ctx context.Context, kind, message string) { f(ctx, kind, message) }

// Mutation describes one optimistic write. V is whatever prior value is
// needed to restore the local view on failure.
type Mutation[V any] struct {
	// Name identifies the mutation in logs.
	Name string

	// OnMutate applies the optimistic local update and returns the prior
	// value used for rollback.
	OnMutate func() V

	// Mutate performs the remote write. Transient failures are retried.
	Mutate func(ctx context.Context) error

	// OnRollback restores the captured prior value.
	OnRollback func(V)

	// OnSuccess runs after the remote write is confirmed. Optional.
	OnSuccess func()

	// ErrorMessage is shown to the user on rollback. Empty falls back to
	// the underlying error text.
	ErrorMessage string
}

// Executor serializes mutations and guarantees that exactly one of
// OnSuccess or OnRollback runs per Execute call.
type Executor[V any] struct {
	logger   zerolog.Logger
	notifier Notifier
	retry    retry.Options

	busy atomic.Bool
}

// NewExecutor creates an executor. A nil notifier drops notifications.
// Zero retry options use the retry package defaults with transient-only
// classification.
func NewExecutor[V any](logger zerolog.Logger, notifier Notifier, opts retry.Options) *Executor[V] {
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = retry.TransientOnly
	}
	return &Executor[V]{logger: logger, notifier: notifier, retry: opts}
}

// Busy reports whether a mutation is in flight.
func (e *Executor[V]) Busy() bool {
	return e.busy.Load()
}

// Execute runs m. The optimistic update happens before the remote write;
// if the write ultimately fails the prior value is restored and the user
// is notified. Returns ErrBusy without touching local state when another
// mutation is still in flight.
func (e *Executor[V]) Execute(ctx context.Context, m Mutation[V]) error {
	if !e.busy.CompareAndSwap(false, true) {
		return fault.Validation(m.Name, ErrBusy)
	}
	defer e.busy.Store(false)

	prior := m.OnMutate()

	_, err := retry.Do(ctx, func() (struct{}, error) {
		return struct{}{}, m.Mutate(ctx)
	}, e.retry)
	if err != nil {
		m.OnRollback(prior)
		telemetry.GetMetrics().MutationRollbacksTotal.Add(ctx, 1)
		e.logger.Warn().Err(err).Str("mutation", m.Name).Msg("mutation rolled back")

		if e.notifier != nil {
			msg := m.ErrorMessage
			if msg == "" {
				msg = err.Error()
			}
			e.notifier.Notify(ctx, NotifyError, msg)
		}
		return err
	}

	if m.OnSuccess != nil {
		m.OnSuccess()
	}
	telemetry.GetMetrics().MutationsTotal.Add(ctx, 1)
	e.logger.Debug().Str("mutation", m.Name).Msg("mutation committed")
	return nil
}
