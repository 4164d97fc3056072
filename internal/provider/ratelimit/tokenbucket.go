package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"dividendquotes/internal/provider"
)

// NewLimiter builds a token bucket refilled at perMinute tokens per minute
// holding at most burst tokens. It starts full.
func NewLimiter(perMinute float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

// TokenBucket wraps an upstream and gates every call on a token.
type TokenBucket struct {
	U provider.Upstream
	L *rate.Limiter
}

var _ provider.Upstream = (*TokenBucket)(nil)

func (t *TokenBucket) wait(ctx context.Context) error {
	if t.L == nil {
		return nil
	}
	return t.L.Wait(ctx)
}

func (t *TokenBucket) QuoteSummary(ctx context.Context, symbol string, modules []string) (provider.QuoteSummary, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.U.QuoteSummary(ctx, symbol, modules)
}

func (t *TokenBucket) Chart(ctx context.Context, symbol string, q provider.HistoryQuery) ([]provider.Bar, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.U.Chart(ctx, symbol, q)
}

func (t *TokenBucket) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.U.Search(ctx, query)
}
