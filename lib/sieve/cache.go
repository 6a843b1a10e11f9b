package sieve

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/sift/lib/loader"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Cache during initialization.
type Options struct {
	// Capacity is the maximum number of entries (must be positive).
	Capacity int

	// Name labels the cache's metrics. Caches sharing a name share
	// counters.
	Name string
}

// DefaultOptions returns the default Cache options.
func DefaultOptions() *Options {
	return &Options{
		Capacity: 1024,
		Name:     "default",
	}
}

// --------------------------------------------------------------------------
// Node and Cache Types
// --------------------------------------------------------------------------

// cnode is one cache entry. key and value are immutable, so a reader that
// loaded the node pointer from the key map stays safe even if the node is
// concurrently evicted. prev points towards the head (newer), next towards
// the tail (older); both are only touched under the cache mutex.
type cnode[K comparable, V any] struct {
	key     K
	value   V
	visited atomic.Bool
	prev    *cnode[K, V]
	next    *cnode[K, V]
}

// Cache is a bounded key/value cache with SIEVE eviction.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	capacity int
	items    *xsync.MapOf[K, *cnode[K, V]]
	loader   *loader.Loader[K, V]

	// mu guards head, tail, hand, size and all prev/next links. It is held
	// for "evict + insert" as one atomic unit and never across a factory
	// call.
	mu   sync.Mutex
	head *cnode[K, V]
	tail *cnode[K, V]
	hand *cnode[K, V]
	size int

	hits       *metrics.Counter
	misses     *metrics.Counter
	loads      *metrics.Counter
	loadErrors *metrics.Counter
	evictions  *metrics.Counter
}

// New creates a cache with the specified options (optional).
// It panics if the configured capacity is not positive; a cache that can
// hold nothing cannot satisfy its own contract.
func New[K comparable, V any](opts *Options) *Cache[K, V] {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Capacity <= 0 {
		panic(fmt.Sprintf("sieve: capacity must be positive, got %d", opts.Capacity))
	}

	c := &Cache[K, V]{
		capacity:   opts.Capacity,
		items:      xsync.NewMapOf[K, *cnode[K, V]](),
		hits:       metrics.GetOrCreateCounter(fmt.Sprintf(`sift_cache_hits_total{cache=%q}`, opts.Name)),
		misses:     metrics.GetOrCreateCounter(fmt.Sprintf(`sift_cache_misses_total{cache=%q}`, opts.Name)),
		loads:      metrics.GetOrCreateCounter(fmt.Sprintf(`sift_cache_loads_total{cache=%q}`, opts.Name)),
		loadErrors: metrics.GetOrCreateCounter(fmt.Sprintf(`sift_cache_load_errors_total{cache=%q}`, opts.Name)),
		evictions:  metrics.GetOrCreateCounter(fmt.Sprintf(`sift_cache_evictions_total{cache=%q}`, opts.Name)),
	}
	c.loader = loader.New[K, V](backing[K, V]{c})
	return c
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the cached value for key, marking the entry as visited so the
// next eviction scan spares it.
//
// Thread-safety: lock-free.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.peek(key)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return v, ok
}

// Contains reports whether key is cached, without touching the visited flag.
//
// Thread-safety: lock-free.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.items.Load(key)
	return ok
}

// Len returns the current number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Cap returns the maximum number of entries.
func (c *Cache[K, V]) Cap() int {
	return c.capacity
}

// peek is the metric-free hit path shared by Get and the loader backing.
func (c *Cache[K, V]) peek(key K) (V, bool) {
	if n, ok := c.items.Load(key); ok {
		n.visited.Store(true)
		return n.value, true
	}
	var zero V
	return zero, false
}

// --------------------------------------------------------------------------
// Population
// --------------------------------------------------------------------------

// GetOrLoad returns the cached value for key or computes it with factory.
//
// At most one factory invocation per key is in flight at any time: every
// concurrent caller for the same missing key waits for that one invocation
// and shares its value or error. On factory failure nothing is cached and
// the next call retries. The context bounds only this call's waiting; an
// in-flight factory always runs to completion (see lib/loader).
//
// Thread-safety: safe for concurrent use.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, factory loader.Factory[K, V]) (V, error) {
	if v, ok := c.peek(key); ok {
		c.hits.Inc()
		return v, nil
	}
	c.misses.Inc()

	return c.loader.GetOrLoad(ctx, key, func(ctx context.Context, key K) (V, error) {
		v, err := factory(ctx, key)
		if err != nil {
			c.loadErrors.Inc()
		} else {
			c.loads.Inc()
		}
		return v, err
	})
}

// Set inserts or replaces the value for key, evicting if the cache is full.
// A replaced entry gets a fresh node at the head; readers still holding the
// old node keep seeing the old value.
//
// Thread-safety: safe for concurrent use.
func (c *Cache[K, V]) Set(key K, value V) {
	n := &cnode[K, V]{key: key, value: value}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items.Load(key); ok {
		c.unlink(old)
		c.size--
	} else if c.size == c.capacity {
		c.evict()
	}
	c.pushFront(n)
	c.items.Store(key, n)
}

// --------------------------------------------------------------------------
// Loader Backing
// --------------------------------------------------------------------------

// backing adapts the cache to loader.Backing without widening the public
// Cache API.
type backing[K comparable, V any] struct {
	c *Cache[K, V]
}

func (b backing[K, V]) Peek(key K) (V, bool) {
	return b.c.peek(key)
}

// Commit stores a freshly loaded value. Eviction and insertion happen under
// one lock acquisition so the capacity bound holds at every instant.
func (b backing[K, V]) Commit(key K, value V) {
	c := b.c
	n := &cnode[K, V]{key: key, value: value}

	c.mu.Lock()
	defer c.mu.Unlock()

	// the single-flight protocol makes a duplicate commit for a live key
	// impossible, but a concurrent Set may have beaten us here
	if _, ok := c.items.Load(key); ok {
		return
	}
	if c.size == c.capacity {
		c.evict()
	}
	c.pushFront(n)
	c.items.Store(key, n)
}

// --------------------------------------------------------------------------
// List Maintenance and Eviction (all under c.mu)
// --------------------------------------------------------------------------

// pushFront links n as the new head.
func (c *Cache[K, V]) pushFront(n *cnode[K, V]) {
	n.next = c.head
	n.prev = nil
	if c.head != nil {
		c.head.prev = n
	} else {
		c.tail = n
	}
	c.head = n
	c.size++
}

// unlink removes n from the list. If the hand rests on n it is moved to n's
// newer neighbour, like after an eviction.
func (c *Cache[K, V]) unlink(n *cnode[K, V]) {
	if c.hand == n {
		c.hand = n.prev
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// evict removes one entry following the SIEVE policy: scan from the hand
// (or the tail if the hand is unset) towards the head, wrapping at the end,
// clearing visited flags on the way; the first entry with a clear flag is
// the victim. The hand stays just before the victim so the next eviction
// resumes there instead of restarting at the tail.
//
// Terminates after at most two passes: the first pass clears every flag it
// meets.
func (c *Cache[K, V]) evict() {
	n := c.hand
	if n == nil {
		n = c.tail
	}
	for n.visited.Load() {
		n.visited.Store(false)
		n = n.prev
		if n == nil {
			n = c.tail
		}
	}

	c.hand = n.prev
	c.unlink(n)
	c.items.Delete(n.key)
	c.size--
	c.evictions.Inc()
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot of the cache counters. Counters are
// shared between caches configured with the same Name.
type Stats struct {
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Loads      uint64 `json:"loads"`
	LoadErrors uint64 `json:"load_errors"`
	Evictions  uint64 `json:"evictions"`
	Len        int    `json:"len"`
	Capacity   int    `json:"capacity"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:       c.hits.Get(),
		Misses:     c.misses.Get(),
		Loads:      c.loads.Get(),
		LoadErrors: c.loadErrors.Get(),
		Evictions:  c.evictions.Get(),
		Len:        c.Len(),
		Capacity:   c.capacity,
	}
}
