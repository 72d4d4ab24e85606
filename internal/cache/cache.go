// Package cache provides an in-memory store for expensive read results,
// keyed by request shape. Entries carry their write time and the TTL is
// supplied by the reader, so the same entry can be fresh for one caller
// and stale for another.
package cache

import (
	"sync"
	"time"
)

const (
	// DefaultTTL applies to reads of today's data, which changes with
	// every crawl.
	DefaultTTL = 15 * time.Minute

	// HistoricalTTL applies to reads of past days, which are immutable
	// once the day has rolled over.
	HistoricalTTL = time.Hour
)

type entry struct {
	value     any
	createdAt time.Time
}

// Cache is a thread-safe map of keys to values with read-time expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	hits    uint64
	misses  uint64

	now func() time.Time
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	Entries   int           `json:"total_entries"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	OldestAge time.Duration `json:"-"`
	NewestAge time.Duration `json:"-"`
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

var (
	sharedOnce sync.Once
	shared     *Cache
)

// Shared returns the process-wide cache instance.
func Shared() *Cache {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

// Get returns the value stored under key if it was written within ttl.
// An entry older than ttl is removed and reported as a miss.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	if c.now().Sub(e.createdAt) > ttl {
		c.mu.Lock()
		// Re-check under the write lock in case a fresh value landed.
		if cur, ok := c.entries[key]; ok && cur.createdAt.Equal(e.createdAt) {
			delete(c.entries, key)
		}
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key, stamping it with the current time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, createdAt: c.now()}
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	return n
}

// CleanupExpired removes entries older than ttl and returns the count.
func (c *Cache) CleanupExpired(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports entry count, hit counters and the age spread of entries.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	now := c.now()
	for _, e := range c.entries {
		age := now.Sub(e.createdAt)
		if s.OldestAge == 0 || age > s.OldestAge {
			s.OldestAge = age
		}
		if s.NewestAge == 0 || age < s.NewestAge {
			s.NewestAge = age
		}
	}
	return s
}
