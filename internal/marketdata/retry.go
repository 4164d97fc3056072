package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retries around crumb invalidation.
type RetryConfig struct {
	// MaxRetries caps the total attempts of one call, the first included.
	MaxRetries int
	// InvalidCrumbRetries caps the retries caused by crumb invalidation.
	InvalidCrumbRetries int
	// InvalidCrumbDelay is the wait before the first crumb retry.
	InvalidCrumbDelay time.Duration
	// ExponentialBackoff doubles the wait on each further crumb retry.
	ExponentialBackoff bool
}

// DefaultRetryConfig returns the retry tuning used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:          3,
		InvalidCrumbRetries: 3,
		InvalidCrumbDelay:   time.Second,
		ExponentialBackoff:  true,
	}
}

// RetryConfigSource yields the retry tuning in effect. The client asks on
// every call, so changes apply to the next call without a rebuild.
type RetryConfigSource interface {
	RetryConfig() RetryConfig
}

// RetryConfigFunc adapts a function to RetryConfigSource.
type RetryConfigFunc func() RetryConfig

func (f RetryConfigFunc) RetryConfig() RetryConfig { return f() }

// RetrySettings is a RetryConfigSource that can be changed at runtime.
// It is safe for concurrent use.
type RetrySettings struct {
	mu  sync.RWMutex
	cfg RetryConfig
}

// NewRetrySettings creates RetrySettings holding cfg.
func NewRetrySettings(cfg RetryConfig) *RetrySettings {
	return &RetrySettings{cfg: cfg}
}

func (s *RetrySettings) RetryConfig() RetryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the whole configuration.
func (s *RetrySettings) Set(cfg RetryConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Update applies fn to the configuration under the lock.
func (s *RetrySettings) Update(fn func(*RetryConfig)) {
	s.mu.Lock()
	fn(&s.cfg)
	s.mu.Unlock()
}

// maxCrumbDelay caps a single wait once doubling gets out of hand.
const maxCrumbDelay = time.Hour

// crumbBackOff yields InvalidCrumbDelay, then doubles it per call when
// ExponentialBackoff is set. It never stops on its own; the caller bounds
// the number of retries.
func crumbBackOff(cfg RetryConfig) backoff.BackOff {
	base := cfg.InvalidCrumbDelay
	if base < 0 {
		base = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 1
	if cfg.ExponentialBackoff {
		b.Multiplier = 2
	}
	b.MaxInterval = maxCrumbDelay
	if base > b.MaxInterval {
		b.MaxInterval = base
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
