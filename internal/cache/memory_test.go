package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dividendquotes/internal/cache"
)

//nolint:tparallel // Subtests share one store and run in order.
func TestMemoryStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, cache.NewMemoryStore(10))
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := cache.NewMemoryStore(2)
	now := time.Now()

	for i := range 2 {
		if err := s.Set(ctx, fmt.Sprintf("k%d", i), cache.Entry{Timestamp: now}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	// Touch k0 so k1 becomes the eviction candidate.
	if _, err := s.Get(ctx, "k0"); err != nil {
		t.Fatalf("Get(k0) error = %v", err)
	}
	if err := s.Set(ctx, "k2", cache.Entry{Timestamp: now}); err != nil {
		t.Fatalf("Set(k2) error = %v", err)
	}

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Get(k1) error = %v, want ErrCacheMiss", err)
	}
	if _, err := s.Get(ctx, "k0"); err != nil {
		t.Errorf("Get(k0) error = %v, want hit", err)
	}
}

func TestNewMemoryStore_DefaultSize(t *testing.T) {
	t.Parallel()

	s := cache.NewMemoryStore(0)
	if s == nil {
		t.Fatal("NewMemoryStore(0) returned nil")
	}
	if err := s.Set(context.Background(), "k", cache.Entry{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}
