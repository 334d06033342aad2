// Package cache provides a generic loader cache combining a TTL-bounded LRU with
// singleflight to coalesce concurrent loads for the same key.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoaderCache loads values on miss via a callback. Concurrent misses for the same key share one load.
// Entries expire after ttl so edits made through other replicas become visible.
// A load that overlaps an invalidation is returned to its callers but never cached.
type LoaderCache[K comparable, V any] struct {
	lru         *expirable.LRU[string, V]
	group       singleflight.Group
	keyToString func(K) string

	mu    sync.Mutex
	epoch uint64 // bumped by every invalidation
}

// NewLoaderCache creates a loader cache with the given max entries, entry ttl and key serializer.
// A ttl of zero disables expiry.
func NewLoaderCache[K comparable, V any](maxEntries int, ttl time.Duration, keyToString func(K) string) *LoaderCache[K, V] {
	return &LoaderCache[K, V]{
		lru:         expirable.NewLRU[string, V](maxEntries, nil, ttl),
		keyToString: keyToString,
	}
}

// Get returns the value for key, loading it via load on cache miss.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)

	return v, err
}

// GetWithStats is like Get but also reports whether the value came from cache.
// Load errors are not cached.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	keyStr := c.keyToString(key)
	if v, ok := c.lru.Get(keyStr); ok {
		return v, true, nil
	}

	start := c.currentEpoch()

	// callers arriving after an invalidation must not join a load that started before it
	val, err, _ := c.group.Do(keyStr+"#"+strconv.FormatUint(start, 10), func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.mu.Lock()
		if c.epoch == start {
			c.lru.Add(keyStr, loaded)
		}
		c.mu.Unlock()

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	return val.(V), false, nil
}

func zero[V any]() (z V) { return z }

func (c *LoaderCache[K, V]) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.epoch
}

// Invalidate removes the entry for key and keeps loads already in flight from re-adding it.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.lru.Remove(c.keyToString(key))
}

// InvalidateAll removes all entries.
func (c *LoaderCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.lru.Purge()
}

// Len returns the number of entries in the cache.
func (c *LoaderCache[K, V]) Len() int {
	return c.lru.Len()
}
