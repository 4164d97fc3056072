package ratelimit

import (
	"context"
	"sync"
	"time"

	"dividendquotes/internal/provider"
)

// MinInterval wraps an upstream and enforces a minimum time between the
// starts of consecutive calls. Waiting callers return early if their context
// is canceled.
type MinInterval struct {
	U        provider.Upstream
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

var _ provider.Upstream = (*MinInterval)(nil)

// reserve claims the next free slot and returns how long to wait for it.
func (m *MinInterval) reserve() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	start := m.next
	if start.Before(now) {
		start = now
	}
	m.next = start.Add(m.Interval)
	return start.Sub(now)
}

func (m *MinInterval) gate(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	wait := m.reserve()
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) QuoteSummary(ctx context.Context, symbol string, modules []string) (provider.QuoteSummary, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	return m.U.QuoteSummary(ctx, symbol, modules)
}

func (m *MinInterval) Chart(ctx context.Context, symbol string, q provider.HistoryQuery) ([]provider.Bar, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	return m.U.Chart(ctx, symbol, q)
}

func (m *MinInterval) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	return m.U.Search(ctx, query)
}

// Wrap applies the configured limits to u. A non-positive perMinute skips the
// token bucket and a non-positive minInterval skips the interval gate.
func Wrap(u provider.Upstream, perMinute float64, burst int, minInterval time.Duration) provider.Upstream {
	if perMinute > 0 {
		u = &TokenBucket{U: u, L: NewLimiter(perMinute, burst)}
	}
	if minInterval > 0 {
		u = &MinInterval{U: u, Interval: minInterval}
	}
	return u
}
