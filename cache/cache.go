// Package cache provides the thread-safe caches used by the validation
// engine: a bounded LRU for compiled artifacts and an unbounded memo for
// checker results.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a bounded, thread-safe least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates an LRU holding at most capacity items (100 when capacity
// is not positive).
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &LRU[K, V]{
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Set stores value for key, evicting the least recently used item when full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// GetOrSet returns the cached value for key, computing and storing it with
// fn on a miss. fn runs under the cache lock and must not call back into c.
func (c *LRU[K, V]) GetOrSet(key K, fn func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*lruEntry[K, V]).value
	}
	c.misses.Add(1)
	value := fn()
	c.set(key, value)
	return value
}

// set must be called with mu held.
func (c *LRU[K, V]) set(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	if len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			delete(c.items, oldest.Value.(*lruEntry[K, V]).key)
			c.order.Remove(oldest)
			c.evicts.Add(1)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
}

// Len returns the number of cached items.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats holds cache statistics.
type Stats struct {
	Size     int
	Capacity int // 0 for unbounded caches
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	Computes uint64
	Shared   uint64
	HitRate  float64
}

func hitRate(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return Stats{
		Size:     c.Len(),
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicts:   c.evicts.Load(),
		HitRate:  hitRate(hits, misses),
	}
}
