package cache

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxItems bounds the memory store when no size is configured.
const DefaultMaxItems = 10000

// MemoryStore keeps entries in a size-bounded LRU. When full, the least
// recently used entry is dropped.
type MemoryStore struct {
	items  *lru.Cache[string, Entry]
	closed atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding at most maxItems entries.
func NewMemoryStore(maxItems int) *MemoryStore {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	// lru.New only fails for a non-positive size.
	items, _ := lru.New[string, Entry](maxItems)
	return &MemoryStore{items: items}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	if s.closed.Load() {
		return Entry{}, ErrCacheClosed
	}
	e, ok := s.items.Get(key)
	if !ok {
		return Entry{}, ErrCacheMiss
	}
	return e, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	s.items.Add(key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	s.items.Remove(key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	s.items.Purge()
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (s *MemoryStore) Len() int { return s.items.Len() }

func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.items.Purge()
	return nil
}
