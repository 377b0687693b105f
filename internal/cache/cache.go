package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// Cache stores archive responses keyed by WeatherQuery.CacheKey.
// A ttl of zero means the entry never expires: a past date range never changes.
type Cache interface {
	Get(ctx context.Context, key string) (models.ProviderResponse, bool, error)
	Set(ctx context.Context, key string, value models.ProviderResponse, ttl time.Duration) error
	Name() string
}

// InMemoryCache implements Cache using a mutex-guarded map. Expired
// entries are removed on access. Safe to share across sessions.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// cacheEntry stores a cached response with its expiry; zero expiresAt never expires.
type cacheEntry struct {
	value     models.ProviderResponse
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Name implements Cache.Name.
func (c *InMemoryCache) Name() string { return "in_memory" }

// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.ProviderResponse, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.ProviderResponse{}, false, nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return models.ProviderResponse{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key. ttl <= 0 keeps it forever.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.ProviderResponse, ttl time.Duration) error {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
