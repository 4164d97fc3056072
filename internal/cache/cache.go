package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not found in the store.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheClosed is returned when an operation is attempted on a closed store.
	ErrCacheClosed = errors.New("cache is closed")
)

// Entry is a cached payload and the time it was fetched. Stores do not
// interpret Data and do not judge freshness; readers compare Timestamp
// against their own TTL.
type Entry struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is still within ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// Store is the interface each cache backend implements.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (Entry, error)

	// Set stores e under key, replacing any previous entry.
	Set(ctx context.Context, key string, e Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases the backend. It is safe to call more than once.
	Close() error
}
