package mutate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/retry"
)

var fastRetry = retry.Options{
	MaxAttempts:   3,
	InitialDelay:  time.Millisecond,
	BackoffFactor: 2,
	ShouldRetry:   retry.TransientOnly,
}

// view is a stand-in for optimistic local state.
type view struct {
	Status string
	Pinned bool
}

type capture struct {
	mu      sync.Mutex
	kind    string
	message string
	count   int
}

func (c *capture) Notify(_ context.Context, kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = kind
	c.message = message
	c.count++
}

func TestExecute_Success(t *testing.T) {
	e := NewExecutor[view](zerolog.Nop(), nil, fastRetry)

	state := view{Status: "open"}
	var mutated, succeeded, rolledBack int

	err := e.Execute(context.Background(), Mutation[view]{
		Name: "request.update_status",
		OnMutate: func() view {
			prior := state
			state.Status = "done"
			mutated++
			return prior
		},
		Mutate:     func(context.Context) error { return nil },
		OnRollback: func(view) { rolledBack++ },
		OnSuccess:  func() { succeeded++ },
	})

	require.NoError(t, err)
	require.Equal(t, "done", state.Status)
	require.Equal(t, 1, mutated)
	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, rolledBack, "exactly one of success or rollback")
	require.False(t, e.Busy())
}

func TestExecute_FailureRestoresPriorState(t *testing.T) {
	notifier := &capture{}
	e := NewExecutor[view](zerolog.Nop(), notifier, fastRetry)

	state := view{Status: "open", Pinned: true}
	prior := state
	var succeeded int

	writeErr := fault.PermissionDenied("docstore.write", fault.ErrAccessDenied)
	err := e.Execute(context.Background(), Mutation[view]{
		Name: "request.update_status",
		OnMutate: func() view {
			p := state
			state.Status = "done"
			return p
		},
		Mutate:       func(context.Context) error { return writeErr },
		OnRollback:   func(v view) { state = v },
		OnSuccess:    func() { succeeded++ },
		ErrorMessage: "could not update the request",
	})

	require.Error(t, err)
	require.ErrorIs(t, err, fault.ErrAccessDenied)
	require.Equal(t, prior, state, "rollback restores the captured value exactly")
	require.Equal(t, 0, succeeded, "exactly one of success or rollback")
	require.Equal(t, NotifyError, notifier.kind)
	require.Equal(t, "could not update the request", notifier.message)
	require.Equal(t, 1, notifier.count)
	require.False(t, e.Busy())
}

func TestExecute_TransientFailureRetriesThenCommits(t *testing.T) {
	e := NewExecutor[view](zerolog.Nop(), &capture{}, fastRetry)

	var attempts, rolledBack, succeeded int
	err := e.Execute(context.Background(), Mutation[view]{
		Name:     "request.toggle_pin",
		OnMutate: func() view { return view{} },
		Mutate: func(context.Context) error {
			attempts++
			if attempts < 3 {
				return fault.Transient("docstore.write", errors.New("deadline exceeded"))
			}
			return nil
		},
		OnRollback: func(view) { rolledBack++ },
		OnSuccess:  func() { succeeded++ },
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, rolledBack)
}

func TestExecute_NonTransientFailureIsNotRetried(t *testing.T) {
	e := NewExecutor[view](zerolog.Nop(), &capture{}, fastRetry)

	var attempts int
	err := e.Execute(context.Background(), Mutation[view]{
		Name:     "member.update_role",
		OnMutate: func() view { return view{} },
		Mutate: func(context.Context) error {
			attempts++
			return fault.Validation("member.update_role", errors.New("unknown role"))
		},
		OnRollback: func(view) {},
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestExecute_RejectsConcurrentMutation(t *testing.T) {
	e := NewExecutor[view](zerolog.Nop(), nil, fastRetry)

	release := make(chan struct{})
	inFlight := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- e.Execute(context.Background(), Mutation[view]{
			Name:     "slow",
			OnMutate: func() view { return view{} },
			Mutate: func(context.Context) error {
				close(inFlight)
				<-release
				return nil
			},
			OnRollback: func(view) {},
		})
	}()

	<-inFlight
	require.True(t, e.Busy())

	var touched atomic.Bool
	err := e.Execute(context.Background(), Mutation[view]{
		Name:       "rejected",
		OnMutate:   func() view { touched.Store(true); return view{} },
		Mutate:     func(context.Context) error { return nil },
		OnRollback: func(view) {},
	})
	require.ErrorIs(t, err, ErrBusy)
	require.True(t, fault.IsValidation(err))
	require.False(t, touched.Load(), "rejected mutation must not touch local state")

	close(release)
	require.NoError(t, <-done)
	require.False(t, e.Busy())
}
