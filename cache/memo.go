package cache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Memo is an unbounded, process-lifetime memo of computed values.
//
// Reads run concurrently. Concurrent computations of the same key are
// coalesced so fn runs once; computations of different keys do not block
// each other. The first stored value for a key is never replaced. Failed
// computations are not stored.
type Memo[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	group singleflight.Group

	hits     atomic.Uint64
	misses   atomic.Uint64
	computes atomic.Uint64
	shared   atomic.Uint64
}

// NewMemo creates an empty Memo.
func NewMemo[V any]() *Memo[V] {
	return &Memo[V]{items: make(map[string]V)}
}

// Get returns the stored value for key.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	v, ok := m.items[key]
	m.mu.RUnlock()
	return v, ok
}

// Do returns the stored value for key, or computes it with fn. cached
// reports whether the value came from an earlier computation.
func (m *Memo[V]) Do(key string, fn func() (V, error)) (value V, cached bool, err error) {
	if v, ok := m.Get(key); ok {
		m.hits.Add(1)
		return v, true, nil
	}
	m.misses.Add(1)

	res, err, shared := m.group.Do(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		m.computes.Add(1)
		v, err := fn()
		if err != nil {
			return nil, err
		}
		return m.store(key, v), nil
	})
	if shared {
		m.shared.Add(1)
	}
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), shared, nil
}

// store inserts v unless a value is already present, and returns the value
// that ends up stored.
func (m *Memo[V]) store(key string, v V) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[key]; ok {
		return existing
	}
	m.items[key] = v
	return v
}

// Len returns the number of stored values.
func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Stats returns memo statistics. Hits counts lookups served from storage;
// Shared counts callers that waited on another caller's computation.
func (m *Memo[V]) Stats() Stats {
	hits, misses := m.hits.Load(), m.misses.Load()
	return Stats{
		Size:     m.Len(),
		Hits:     hits,
		Misses:   misses,
		Computes: m.computes.Load(),
		Shared:   m.shared.Load(),
		HitRate:  hitRate(hits, misses),
	}
}
