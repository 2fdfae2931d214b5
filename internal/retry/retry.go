// Package retry wraps fallible operations with exponential-backoff retry
// semantics. Call sites needing resilience compose with it rather than
// hand-rolling timer loops.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/collabhq/portal/internal/fault"
)

// Defaults applied when an Options field is unset.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = 1 * time.Second
	DefaultBackoffFactor = 2.0
)

// Options controls the retry policy.
type Options struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; each subsequent
	// wait is multiplied by BackoffFactor.
	InitialDelay time.Duration

	BackoffFactor float64

	// ShouldRetry excludes non-transient errors from retry. When nil every
	// error is retried until attempts exhaust.
	ShouldRetry func(error) bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.BackoffFactor <= 0 {
		o.BackoffFactor = DefaultBackoffFactor
	}
	return o
}

// TransientOnly is a ShouldRetry predicate admitting only errors the fault
// taxonomy considers retryable.
func TransientOnly(err error) bool {
	return fault.Retryable(err)
}

// Do invokes fn until it succeeds, the attempt budget is spent, or
// ShouldRetry rejects the error. The last error is returned unmodified; no
// silent swallowing. Each wait is the computed backoff delay; fn is never
// invoked before its delay has elapsed.
func Do[T any](ctx context.Context, fn func() (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialDelay
	bo.Multiplier = opts.BackoffFactor
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute

	op := func() (T, error) {
		v, err := fn()
		if err != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(opts.MaxAttempts)),
	)
	if err != nil {
		// Unwrap the permanent marker so callers see the original error.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
	}
	return v, err
}
