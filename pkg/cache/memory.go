package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache keeps entries in process memory. Expired entries are dropped
// lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryItem
	now     func() time.Time
}

type memoryItem struct {
	entry   *Entry
	expires time.Time
}

// NewMemoryCache creates an in-memory cache. A ttl of 0 keeps entries
// until Close.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryItem),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && !c.now().Before(item.expires) {
		delete(c.entries, key)
		return nil, ErrMiss
	}
	return item.entry, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryItem{entry: entry}
	if c.ttl > 0 {
		item.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = item
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryItem)
	return nil
}

// Name implements Cache.
func (c *MemoryCache) Name() string {
	return "memory"
}

// NopCache never stores anything.
type NopCache struct{}

// Get implements Cache.
func (NopCache) Get(context.Context, string) (*Entry, error) { return nil, ErrMiss }

// Put implements Cache.
func (NopCache) Put(context.Context, string, *Entry) error { return nil }

// Close implements Cache.
func (NopCache) Close() error { return nil }

// Name implements Cache.
func (NopCache) Name() string { return "none" }
