package multitenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TenantStore returns the transactional resource of a tenant. Implementations must
// return the same handle for a tenant on every call: the router keys one manager
// per handle.
type TenantStore interface {
	Resource(ctx context.Context, tenantID string) (any, error)
}

// StoreFunc adapts a function to TenantStore.
type StoreFunc func(ctx context.Context, tenantID string) (any, error)

// Resource implements TenantStore.
func (f StoreFunc) Resource(ctx context.Context, tenantID string) (any, error) {
	return f(ctx, tenantID)
}

// StaticStore maps tenant identifiers to resources opened up front.
type StaticStore map[string]any

// Resource implements TenantStore.
func (s StaticStore) Resource(_ context.Context, tenantID string) (any, error) {
	r, ok := s[tenantID]
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return r, nil
}

// CacheOption configures a CachedStore.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl              time.Duration
	maxSize          int
	staleGracePeriod time.Duration
}

type cacheEntry struct {
	resource     any
	fetchedAt    time.Time
	lastAccessAt time.Time
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.fetchedAt) > ttl
}

func (e *cacheEntry) isStale(gracePeriod time.Duration) bool {
	return time.Since(e.fetchedAt) > gracePeriod
}

// CachedStore caches the lookups of another store. Concurrent misses for one tenant
// share a single upstream call, and a failing upstream keeps serving the cached
// resource until the stale grace period has passed.
type CachedStore struct {
	upstream TenantStore
	cfg      cacheConfig

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	sf      singleflight.Group
}

// NewCachedStore wraps upstream with a cache.
func NewCachedStore(upstream TenantStore, opts ...CacheOption) *CachedStore {
	cfg := cacheConfig{
		ttl:              5 * time.Minute,
		maxSize:          100,
		staleGracePeriod: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CachedStore{
		upstream: upstream,
		cfg:      cfg,
		entries:  make(map[string]*cacheEntry),
	}
}

// Resource implements TenantStore.
func (c *CachedStore) Resource(ctx context.Context, tenantID string) (any, error) {
	if c == nil || c.upstream == nil {
		return nil, ErrTenantNotFound
	}

	c.mu.RLock()
	entry, exists := c.entries[tenantID]
	c.mu.RUnlock()

	if exists && !entry.isExpired(c.cfg.ttl) {
		c.touch(tenantID)
		return entry.resource, nil
	}

	result, err, _ := c.sf.Do(tenantID, func() (any, error) {
		r, err := c.upstream.Resource(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		c.store(tenantID, r)
		return r, nil
	})
	if err != nil {
		if exists && !entry.isStale(c.cfg.staleGracePeriod) {
			return entry.resource, nil
		}
		return nil, err
	}
	return result, nil
}

// Invalidate drops the cached resource of a tenant.
func (c *CachedStore) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// Len returns the number of cached tenants.
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CachedStore) store(tenantID string, resource any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tenantID]; !exists && len(c.entries) >= c.cfg.maxSize {
		c.evictOldest()
	}
	now := time.Now()
	c.entries[tenantID] = &cacheEntry{resource: resource, fetchedAt: now, lastAccessAt: now}
}

func (c *CachedStore) touch(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.entries[tenantID]; exists {
		entry.lastAccessAt = time.Now()
	}
}

// evictOldest removes the least recently accessed entry. Callers hold c.mu.
func (c *CachedStore) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// WithTTL sets how long a lookup is served from the cache.
func WithTTL(ttl time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMaxSize sets the maximum number of cached tenants.
func WithMaxSize(maxSize int) CacheOption {
	return func(cfg *cacheConfig) {
		if maxSize > 0 {
			cfg.maxSize = maxSize
		}
	}
}

// WithStaleGracePeriod sets how long a cached resource is served while the upstream fails.
func WithStaleGracePeriod(period time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if period > 0 {
			cfg.staleGracePeriod = period
		}
	}
}
