package cache

import (
	"testing"
	"time"
)

func TestQueryCache_GetSet(t *testing.T) {
	c := New(time.Minute)
	if _, ok := c.Get("q"); ok {
		t.Fatal("expected miss")
	}
	c.Set("q", []string{"a", "b"})
	v, ok := c.Get("q")
	if !ok {
		t.Fatal("expected hit")
	}
	if got := v.([]string); len(got) != 2 || got[0] != "a" {
		t.Errorf("got %v", got)
	}
}

func TestQueryCache_TTLExpiry(t *testing.T) {
	c := New(time.Minute)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("q", 1)
	clock = clock.Add(59 * time.Second)
	if _, ok := c.Get("q"); !ok {
		t.Error("entry should still be live before TTL")
	}
	clock = clock.Add(2 * time.Second)
	if _, ok := c.Get("q"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not dropped, Len=%d", c.Len())
	}
}

func TestQueryCache_InvalidateAll(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.InvalidateAll()
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone after invalidation")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should be gone after invalidation")
	}
	// new entries work after invalidation
	c.Set("c", 3)
	if _, ok := c.Get("c"); !ok {
		t.Error("fresh entry after invalidation should hit")
	}
}
