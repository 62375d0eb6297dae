// Package memory provides the default in-process cache: a bounded LRU whose
// entries carry a TTL checked lazily on read.
package memory

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrCacheMiss is returned for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// DefaultMaxEntries bounds the LRU when no size is configured.
const DefaultMaxEntries = 4096

type entry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
}

// Cache implements ports.CacheService in memory.
type Cache struct {
	entries *lru.Cache[string, entry]
	now     func() time.Time
}

// New creates a bounded cache. maxEntries falls back to DefaultMaxEntries
// when non-positive.
func New(maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, now: time.Now}, nil
}

// Get returns the stored payload if its TTL has not elapsed. Expired
// entries are evicted on the spot and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		c.entries.Remove(key)
		return nil, ErrCacheMiss
	}
	return e.payload, nil
}

// Set stores a value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	c.entries.Add(key, entry{
		payload:  value,
		storedAt: c.now(),
		ttl:      time.Duration(ttlSeconds) * time.Second,
	})
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len reports the number of live entries, expired ones included until read.
func (c *Cache) Len() int {
	return c.entries.Len()
}
