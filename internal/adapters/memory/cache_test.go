package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c, err := New(10)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want v", got)
	}
}

func TestCacheMissUnknownKey(t *testing.T) {
	c, _ := New(10)
	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestCacheExpiryOnRead(t *testing.T) {
	c, _ := New(10)
	ctx := context.Background()

	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	if err := c.Set(ctx, "k", []byte("v"), 300); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Still warm just before the TTL
	clock = clock.Add(299 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before TTL, got %v", err)
	}

	// Expired exactly at the TTL boundary
	clock = clock.Add(1 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss at TTL, got %v", err)
	}

	// The expired entry was evicted, not just hidden
	if c.Len() != 0 {
		t.Errorf("expected expired entry evicted, len=%d", c.Len())
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c, _ := New(10)
	ctx := context.Background()

	clock := time.Now()
	c.now = func() time.Time { return clock }

	// Non-positive TTL falls back to 5 minutes
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock = clock.Add(4 * time.Minute)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("expected hit at 4 minutes, got %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after 6 minutes, got %v", err)
	}
}

func TestCacheBounded(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(ctx, key, []byte("v"), 60); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if c.Len() > 8 {
		t.Errorf("cache exceeded bound: len=%d", c.Len())
	}

	// Oldest entries were evicted, newest survive
	if _, err := c.Get(ctx, "k0"); !errors.Is(err, ErrCacheMiss) {
		t.Error("expected k0 evicted")
	}
	if _, err := c.Get(ctx, "k99"); err != nil {
		t.Errorf("expected k99 present, got %v", err)
	}
}

func TestCacheDelete(t *testing.T) {
	c, _ := New(10)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 60)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}
