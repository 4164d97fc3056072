package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBbolt  = "bbolt"
	BackendRedis  = "redis"
)

// dbFileMode is the file mode for the bbolt database file.
const dbFileMode = 0o600

// Options selects and configures a backend.
type Options struct {
	Backend  string
	MaxItems int           // memory
	Path     string        // bbolt
	Addr     string        // redis
	Password string        // redis
	DB       int           // redis
	Prefix   string        // redis
	TTL      time.Duration // redis key expiry
}

// Open builds the backend named by opts.Backend. An empty name means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(opts.MaxItems), nil

	case BackendBbolt:
		if opts.Path == "" {
			return nil, fmt.Errorf("bbolt cache: path is required")
		}
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("bbolt cache: %w", err)
			}
		}
		db, err := bbolt.Open(opts.Path, dbFileMode, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("bbolt cache: opening %s: %w", opts.Path, err)
		}
		s, err := NewBboltStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bbolt cache: %w", err)
		}
		return s, nil

	case BackendRedis:
		if opts.Addr == "" {
			return nil, fmt.Errorf("redis cache: addr is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis cache: ping %s: %w", opts.Addr, err)
		}
		return NewRedisStore(client, opts.Prefix, opts.TTL), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
