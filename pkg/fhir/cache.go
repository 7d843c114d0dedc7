package fhir

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Cache errors.
var (
	ErrCacheKeyNotFound  = errors.New("key not found in cache")
	ErrCacheEntryExpired = errors.New("cache entry expired")
	ErrCacheDisabled     = errors.New("cache disabled")
)

// CacheEntry is a serialized, non-owning snapshot of a resource, keyed by its
// reference string.
type CacheEntry struct {
	Data      []byte
	ExpiresAt time.Time
	ETag      string
}

func (e *CacheEntry) expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Cache is a pluggable lookup from reference string to resource snapshot.
// Entries are overwritten on successful create/update/refresh and
// invalidated on delete; only reference resolution reads them.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
	Keys(ctx context.Context) ([]string, error)
}

// MemoryCache is a process-local Cache with bounded size and per-entry TTL.
// All key-space access is serialized by a mutex: entries are independent, so
// a single-writer discipline is enough.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	order   []string
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries;
// the oldest entry is evicted when the cache is full.
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get retrieves an entry, expiring it on read.
func (c *MemoryCache) Get(_ context.Context, key string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
	}

	if entry.expired() {
		c.remove(key)

		return nil, fmt.Errorf("%w: %s", ErrCacheEntryExpired, key)
	}

	return entry, nil
}

// Set stores an entry, overwriting any previous one.
func (c *MemoryCache) Set(_ context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if c.maxSize > 0 && len(c.entries) >= c.maxSize {
			c.remove(c.order[0])
		}

		c.order = append(c.order, key)
	}

	c.entries[key] = entry

	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(key)

	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.order = nil

	return nil
}

// Has reports whether a live entry exists.
func (c *MemoryCache) Has(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]

	return ok && !entry.expired()
}

// Keys lists the stored keys, oldest first.
func (c *MemoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, len(c.order))
	copy(keys, c.order)

	return keys, nil
}

func (c *MemoryCache) remove(key string) {
	delete(c.entries, key)

	for i, ordered := range c.order {
		if ordered == key {
			c.order = append(c.order[:i], c.order[i+1:]...)

			break
		}
	}
}

// NoOpCache is a Cache that stores nothing.
type NoOpCache struct{}

// NewNoOpCache creates a cache that never hits.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always misses.
func (c *NoOpCache) Get(_ context.Context, _ string) (*CacheEntry, error) {
	return nil, ErrCacheDisabled
}

// Set does nothing.
func (c *NoOpCache) Set(_ context.Context, _ string, _ *CacheEntry) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(_ context.Context, _ string) error {
	return nil
}

// Clear does nothing.
func (c *NoOpCache) Clear(_ context.Context) error {
	return nil
}

// Has always reports false.
func (c *NoOpCache) Has(_ context.Context, _ string) bool {
	return false
}

// Keys always returns nothing.
func (c *NoOpCache) Keys(_ context.Context) ([]string, error) {
	return nil, nil
}
