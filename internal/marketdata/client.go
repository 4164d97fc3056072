package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dividendquotes/internal/cache"
	"dividendquotes/internal/logging"
	"dividendquotes/internal/metrics"
	"dividendquotes/internal/provider"
)

// DefaultTTL is how long a cached response is served, for every operation.
const DefaultTTL = 5 * time.Minute

// DefaultModules are requested when QuoteSummary is called without modules.
var DefaultModules = []string{"price", "summaryDetail"}

// Client fetches quote summaries, historical series and search results from
// an upstream, caching successes and retrying calls that fail because the
// upstream rejected its crumb. Other failures are returned as they are.
//
// Concurrent calls for the same key are not coalesced; each may reach the
// upstream on a miss.
type Client struct {
	upstream provider.Upstream
	store    cache.Store
	ttl      time.Duration
	retry    RetryConfigSource
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithStore sets the cache backend. The default is an in-memory store.
func WithStore(s cache.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithTTL sets how long entries are served. A ttl <= 0 disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithRetryConfig sets where retry tuning is read from on each call.
func WithRetryConfig(src RetryConfigSource) Option {
	return func(c *Client) { c.retry = src }
}

// WithLogger sets the logger. The default is the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the collectors calls are recorded on.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock sets the time source used for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep replaces the wait between crumb retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a Client over upstream.
func New(upstream provider.Upstream, opts ...Option) *Client {
	c := &Client{
		upstream: upstream,
		ttl:      DefaultTTL,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = cache.NewMemoryStore(cache.DefaultMaxItems)
	}
	if c.retry == nil {
		c.retry = NewRetrySettings(DefaultRetryConfig())
	}
	if c.logger == nil {
		c.logger = logging.Global()
	}
	c.logger = c.logger.Named("marketdata")
	return c
}

// QuoteSummary returns the requested modules for symbol, or DefaultModules
// when none are given.
func (c *Client) QuoteSummary(ctx context.Context, symbol string, modules ...string) (provider.QuoteSummary, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	modules = normalizeModules(modules)
	if len(modules) == 0 {
		modules = DefaultModules
	}

	key := fingerprint(OpQuoteSummary, symbol, modules)
	return fetch(ctx, c, OpQuoteSummary, key, func(ctx context.Context) (provider.QuoteSummary, error) {
		return c.upstream.QuoteSummary(ctx, symbol, modules)
	})
}

// HistoricalData returns the bars of symbol from start to end, both dates
// inclusive, at interval. An empty interval means daily.
func (c *Client) HistoricalData(ctx context.Context, symbol string, start, end time.Time, interval provider.Interval) ([]provider.Bar, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidArgument)
	}
	start, end = day(start), day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidArgument, start.Format(dateLayout), end.Format(dateLayout))
	}
	switch interval {
	case "":
		interval = provider.Daily
	case provider.Daily, provider.Weekly, provider.Monthly:
	default:
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidArgument, interval)
	}

	key := fingerprint(OpHistorical, symbol, start.Format(dateLayout), end.Format(dateLayout), string(interval))
	q := provider.HistoryQuery{
		Start:    start,
		End:      end.AddDate(0, 0, 1),
		Interval: interval,
	}
	return fetch(ctx, c, OpHistorical, key, func(ctx context.Context) ([]provider.Bar, error) {
		return c.upstream.Chart(ctx, symbol, q)
	})
}

// Search returns instruments matching query.
func (c *Client) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}

	key := fingerprint(OpSearch, query)
	return fetch(ctx, c, OpSearch, key, func(ctx context.Context) ([]provider.SearchResult, error) {
		return c.upstream.Search(ctx, query)
	})
}

// ClearCache drops every cached entry. Backend failures are logged, not
// returned.
func (c *Client) ClearCache(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("cache clear failed", zap.Error(err))
		return
	}
	c.logger.Info("cache cleared")
}

// fetch serves key from the cache or runs call under the retry policy.
// Only successes are cached. The error of the last attempt is returned
// unwrapped so callers can classify it.
func fetch[T any](ctx context.Context, c *Client, op, key string, call func(context.Context) (T, error)) (T, error) {
	var zero, cached T
	if c.lookup(ctx, op, key, &cached) {
		return cached, nil
	}

	cfg := c.retry.RetryConfig()
	delays := crumbBackOff(cfg)
	attempts, crumbRetries := 0, 0
	for {
		attempts++
		started := time.Now()
		v, err := call(ctx)
		if err == nil {
			c.metrics.UpstreamCall(op, metrics.OutcomeOK, time.Since(started))
			c.remember(ctx, key, v)
			return v, nil
		}

		kind := Classify(err)
		c.metrics.UpstreamCall(op, kind.String(), time.Since(started))
		if kind != KindInvalidCredential {
			return zero, err
		}
		if attempts >= cfg.MaxRetries || crumbRetries >= cfg.InvalidCrumbRetries {
			c.logger.Warn("crumb still rejected, giving up",
				zap.String("operation", op),
				zap.String("key", key),
				zap.Int("attempts", attempts),
			)
			return zero, err
		}

		c.forget(ctx, key)
		delay := delays.NextBackOff()
		crumbRetries++
		c.metrics.CrumbRetry(op)
		c.logger.Info("crumb rejected, retrying",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// lookup decodes a fresh entry for key into dst. Stale and undecodable
// entries are deleted. Store failures count as misses.
func (c *Client) lookup(ctx context.Context, op, key string, dst any) bool {
	if c.ttl <= 0 {
		return false
	}
	e, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.metrics.CacheLookup(op, "miss")
		return false
	}
	if !e.Fresh(c.now(), c.ttl) {
		c.metrics.CacheLookup(op, "stale")
		c.forget(ctx, key)
		return false
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		c.metrics.CacheLookup(op, "miss")
		c.forget(ctx, key)
		return false
	}
	c.metrics.CacheLookup(op, "hit")
	return true
}

func (c *Client) remember(ctx context.Context, key string, v any) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, cache.Entry{Data: data, Timestamp: c.now()}); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Client) forget(ctx context.Context, key string) {
	if c.ttl <= 0 {
		return
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
