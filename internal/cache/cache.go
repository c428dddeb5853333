// Package cache memoizes the results of upstream calls for a fixed time.
//
// One Cache wraps one function. Entries are keyed by the exact ordered
// argument tuple, so callers pass canonical arguments (sorted, deduplicated)
// to share entries across logically equal calls.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/roniherschmann/trendboard/internal/metrics"
)

const DefaultTTL = 300 * time.Second

type entry[V any] struct {
	value     V
	createdAt time.Time
}

type Cache[V any] struct {
	name       string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	// gen is bumped by Clear; loads started under an older gen are not stored.
	gen uint64
}

type Option func(*options)

type options struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries caps the number of live entries. When full, the oldest
// entry is evicted. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		name:       name,
		ttl:        ttl,
		maxEntries: o.maxEntries,
		now:        o.now,
		entries:    make(map[string]entry[V]),
	}
}

// Key joins the argument tuple into a cache key. Order matters.
func Key(args ...string) string {
	return strings.Join(args, "\x1f")
}

// GetOrCompute returns the cached value for key if it is younger than the
// TTL, otherwise runs compute and stores its result. Errors are returned
// as-is and never cached, and neither is a result whose compute overlapped
// a Clear.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.createdAt) <= c.ttl {
		c.mu.Unlock()
		metrics.CacheHit.WithLabelValues(c.name).Inc()
		return e.value, nil
	}
	gen := c.gen
	c.mu.Unlock()
	metrics.CacheMiss.WithLabelValues(c.name).Inc()

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return v, nil
	}
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: v, createdAt: c.now()}
	return v, nil
}

// Clear drops every entry; the next call for any key recomputes.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.gen++
	c.mu.Unlock()
	metrics.CacheClears.WithLabelValues(c.name).Inc()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.createdAt.Before(oldest) {
			oldestKey, oldest, found = k, e.createdAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
