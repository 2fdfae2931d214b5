package identity

import (
	"context"
	"sync"
)

// StaticProvider implements Provider with in-process state. This
// implementation is for testing and local development only.
type StaticProvider struct {
	mu        sync.Mutex
	state     AuthState
	token     string
	tokenErr  error
	callbacks map[int]func(AuthState)
	nextID    int
}

// NewStaticProvider creates a signed-out provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		callbacks: make(map[int]func(AuthState)),
	}
}

// SignIn transitions to signed-in and notifies listeners.
func (p *StaticProvider) SignIn(state AuthState, token string) {
	p.mu.Lock()
	state.SignedIn = true
	p.state = state
	p.token = token
	cbs := p.snapshotCallbacks()
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(state)
	}
}

// SignOut transitions to signed-out and notifies listeners.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	p.state = AuthState{}
	p.token = ""
	cbs := p.snapshotCallbacks()
	state := p.state
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(state)
	}
}

// FailTokens makes FreshToken return err until cleared with FailTokens(nil).
func (p *StaticProvider) FailTokens(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErr = err
}

func (p *StaticProvider) CurrentState(ctx context.Context) (AuthState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *StaticProvider) OnStateChange(fn func(AuthState)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.callbacks[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.callbacks, id)
	}
}

func (p *StaticProvider) FreshToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokenErr != nil {
		return "", p.tokenErr
	}
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}

// snapshotCallbacks must be called with the lock held.
func (p *StaticProvider) snapshotCallbacks() []func(AuthState) {
	cbs := make([]func(AuthState), 0, len(p.callbacks))
	for _, cb := range p.callbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}
