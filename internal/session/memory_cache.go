package session

import (
	"context"
	"sync"
	"time"

	"github.com/collabhq/portal/internal/models"
)

// MemoryCache implements ProfileCache with in-process storage. Used in
// tests and single-process deployments.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*CachedProfile
}

// NewMemoryCache creates an empty in-memory profile cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*CachedProfile),
	}
}

func (c *MemoryCache) Load(ctx context.Context, principalID string) (*CachedProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[principalID]
	if !exists {
		return nil, ErrCacheMiss
	}

	clone := *entry.Principal
	return &CachedProfile{Principal: &clone, SavedAt: entry.SavedAt}, nil
}

func (c *MemoryCache) Store(ctx context.Context, principalID string, p *models.Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := *p
	c.entries[principalID] = &CachedProfile{Principal: &clone, SavedAt: time.Now()}
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context, principalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, principalID)
	return nil
}
