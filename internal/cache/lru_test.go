package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, size int, ttl time.Duration) (*LRUCache[string, int], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string, int](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) = %d, %v; want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to be cached", key)
		}
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		wantHit bool
	}{
		{name: "fresh entry", ttl: time.Minute, advance: 30 * time.Second, wantHit: true},
		{name: "expired entry", ttl: time.Minute, advance: 2 * time.Minute, wantHit: false},
		{name: "zero ttl never expires", ttl: 0, advance: 1000 * time.Hour, wantHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestCache(t, 10, tt.ttl)
			c.Set("k", 7)
			clock.Advance(tt.advance)
			if _, ok := c.Get("k"); ok != tt.wantHit {
				t.Errorf("Get() hit = %v, want %v", ok, tt.wantHit)
			}
		})
	}
}

func TestLRUCache_CleanExpiredAndDelete(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Minute)
	c.Set("old", 1)
	clock.Advance(90 * time.Second)
	c.Set("new", 2)

	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	c.Delete("new")
	c.Delete("never-set")
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Delete, want 0", c.Len())
	}
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCleaner) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1
}

func (c *countingCleaner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	a, b := &countingCleaner{}, &countingCleaner{}
	m.Register(a)
	m.Register(b)

	if n := m.CleanNow(); n != 2 {
		t.Fatalf("CleanNow() = %d, want 2", n)
	}

	m.StartCleanup(5 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for a.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if a.Calls() < 2 || b.Calls() < 2 {
		t.Fatalf("expected periodic cleanup, got a=%d b=%d", a.Calls(), b.Calls())
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
}
