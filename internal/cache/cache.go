// Package cache is a small namespace-keyed TTL cache used to avoid
// re-reading metadata documents and re-scanning the bucket on every request.
package cache

import (
	"sync"
	"time"

	"github.com/fruitsalade/bucketdrive/internal/metrics"
)

// Clock returns the current time. Tests inject a fake one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type entry struct {
	value    any
	storedAt time.Time
}

// Cache maps a namespace to a value with a fixed time-to-live.
// An entry is fresh while now - storedAt < ttl.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   Clock
	entries map[string]entry
}

// New creates a cache. A nil clock means the system clock.
func New(ttl time.Duration, clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the value for ns if present and fresh.
func (c *Cache) Get(ns string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[ns]
	c.mu.RUnlock()

	if ok && c.clock.Now().Sub(e.storedAt) < c.ttl {
		metrics.RecordCacheLookup(ns, true)
		return e.value, true
	}
	metrics.RecordCacheLookup(ns, false)
	return nil, false
}

// Put stores v under ns, replacing any previous entry.
func (c *Cache) Put(ns string, v any) {
	c.mu.Lock()
	c.entries[ns] = entry{value: v, storedAt: c.clock.Now()}
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	metrics.RecordCacheInvalidation()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Lookup is a typed Get. A stored value of a different type counts as a miss.
func Lookup[T any](c *Cache, ns string) (T, bool) {
	var zero T
	v, ok := c.Get(ns)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
