package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys when no prefix is configured.
const DefaultRedisPrefix = "dividendquotes:cache:"

// RedisStore shares entries between processes through Redis. Keys are
// given a Redis expiry of ttl so stale entries are reclaimed by the server.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	closed atomic.Bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. A ttl <= 0 stores keys without expiry.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	if s.closed.Load() {
		return Entry{}, ErrCacheClosed
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, ErrCacheMiss
	}
	return entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Clear deletes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrCacheClosed
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
