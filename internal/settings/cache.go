// Package settings caches the game configuration in process memory.
package settings

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/santajump/server/internal/model"
)

// DefaultTTL is how long a fetched configuration is served before refetching
const DefaultTTL = 60 * time.Second

// Store loads and persists the game configuration
type Store interface {
	Get(ctx context.Context) (model.GameConfig, error)
	Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error)
}

// Cache serves the configuration from memory for up to ttl. Invalidation is local to
// this process; other instances refresh when their own ttl expires.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	value     model.GameConfig
	fetchedAt time.Time
	loaded    bool
}

// NewCache creates a cache in front of store. A non-positive ttl uses DefaultTTL.
func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// Get returns the cached configuration, refetching when it is older than the ttl.
// If a refetch fails and a previous value exists, the stale value is served.
func (c *Cache) Get(ctx context.Context) (model.GameConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	cfg, err := c.store.Get(ctx)
	if err != nil {
		if c.loaded {
			log.Printf("[settings] refresh failed, serving stale config: %v", err)
			return c.value, nil
		}
		return model.GameConfig{}, fmt.Errorf("load game config: %w", err)
	}
	c.value = cfg
	c.fetchedAt = c.now()
	c.loaded = true
	return cfg, nil
}

// Invalidate forces the next Get to refetch
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

// Save persists cfg and invalidates the cache
func (c *Cache) Save(ctx context.Context, cfg model.GameConfig) (model.GameConfig, error) {
	saved, err := c.store.Save(ctx, cfg)
	if err != nil {
		return model.GameConfig{}, fmt.Errorf("save game config: %w", err)
	}
	c.Invalidate()
	return saved, nil
}
