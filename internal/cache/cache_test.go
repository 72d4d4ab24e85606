package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCache(start time.Time) (*Cache, *time.Time) {
	c := New()
	now := start
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGetSetRoundTrip(t *testing.T) {
	c, _ := newTestCache(time.Now())

	c.Set("k", []string{"a", "b"})
	v, ok := c.Get("k", time.Minute)
	if !ok {
		t.Fatal("expected hit")
	}
	if got := v.([]string); len(got) != 2 || got[0] != "a" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestGetExpiryIsPerCall(t *testing.T) {
	c, now := newTestCache(time.Now())

	c.Set("k", 1)
	*now = now.Add(30 * time.Minute)

	// A long TTL still sees the entry.
	if _, ok := c.Get("k", time.Hour); !ok {
		t.Error("entry within one hour should hit")
	}
	// A short TTL on the same entry misses and evicts.
	if _, ok := c.Get("k", time.Minute); ok {
		t.Error("entry older than one minute should miss")
	}
	if _, ok := c.Get("k", time.Hour); ok {
		t.Error("expired read should have evicted the entry")
	}
}

func TestSetRefreshesTimestamp(t *testing.T) {
	c, now := newTestCache(time.Now())

	c.Set("k", 1)
	*now = now.Add(10 * time.Minute)
	c.Set("k", 2)
	*now = now.Add(10 * time.Minute)

	v, ok := c.Get("k", DefaultTTL)
	if !ok {
		t.Fatal("rewritten entry should be fresh")
	}
	if v.(int) != 2 {
		t.Errorf("got %v, want 2", v)
	}
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(time.Now())

	c.Set("k", 1)
	if !c.Delete("k") {
		t.Error("Delete on present key should report true")
	}
	if c.Delete("k") {
		t.Error("Delete on absent key should report false")
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(time.Now())

	c.Set("a", 1)
	c.Set("b", 2)
	if got := c.Clear(); got != 2 {
		t.Errorf("Clear removed %d, want 2", got)
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("entries after clear = %d, want 0", s.Entries)
	}
}

func TestCleanupExpired(t *testing.T) {
	c, now := newTestCache(time.Now())

	c.Set("old", 1)
	*now = now.Add(2 * time.Hour)
	c.Set("new", 2)

	if got := c.CleanupExpired(time.Hour); got != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", got)
	}
	if _, ok := c.Get("new", time.Hour); !ok {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestStats(t *testing.T) {
	c, now := newTestCache(time.Now())

	c.Set("a", 1)
	*now = now.Add(time.Minute)
	c.Set("b", 2)
	*now = now.Add(time.Minute)

	c.Get("a", time.Hour)
	c.Get("missing", time.Hour)

	s := c.Stats()
	if s.Entries != 2 {
		t.Errorf("entries = %d, want 2", s.Entries)
	}
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if s.OldestAge != 2*time.Minute {
		t.Errorf("oldest age = %v, want 2m", s.OldestAge)
	}
	if s.NewestAge != time.Minute {
		t.Errorf("newest age = %v, want 1m", s.NewestAge)
	}
}

func TestSharedSingleton(t *testing.T) {
	if Shared() != Shared() {
		t.Error("Shared should return the same instance")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n)
				c.Get(key, time.Minute)
				if j%50 == 0 {
					c.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()
}
