package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"dividendquotes/internal/cache"
	"dividendquotes/internal/config"
	"dividendquotes/internal/httpx"
	"dividendquotes/internal/logging"
	"dividendquotes/internal/marketdata"
	"dividendquotes/internal/metrics"
	"dividendquotes/internal/provider"
	"dividendquotes/internal/provider/ratelimit"
	"dividendquotes/internal/provider/yahoo"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Store   cache.Store
	Retry   *marketdata.RetrySettings
	Client  *marketdata.Client
}

// Option customizes New.
type Option func(*options)

type options struct {
	upstream provider.Upstream
	logger   *zap.Logger
}

// WithUpstream replaces the Yahoo upstream. Rate limits still apply.
func WithUpstream(u provider.Upstream) Option {
	return func(o *options) { o.upstream = u }
}

// WithLogger replaces the logger built from the config. The global logger is
// left untouched.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// RetryConfig converts the retry section of cfg.
func RetryConfig(cfg config.Config) marketdata.RetryConfig {
	return marketdata.RetryConfig{
		MaxRetries:          cfg.Retry.MaxRetries,
		InvalidCrumbRetries: cfg.Retry.InvalidCrumbRetries,
		InvalidCrumbDelay:   cfg.InvalidCrumbDelay(),
		ExponentialBackoff:  cfg.Retry.ExponentialBackoff,
	}
}

// New wires the components described by cfg. Callers must Close the App.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		l, err := logging.New(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("building logger: %w", err)
		}
		logging.SetGlobal(l)
		logger = l
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	store, err := cache.Open(ctx, cache.Options{
		Backend:  cfg.Cache.Backend,
		MaxItems: cfg.Cache.MaxItems,
		Path:     cfg.Cache.Path,
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		Prefix:   cfg.Cache.RedisPrefix,
		TTL:      cfg.CacheTTL(),
	})
	if err != nil {
		return nil, err
	}

	upstream := o.upstream
	if upstream == nil {
		upstream = newYahoo(cfg)
	}
	upstream = ratelimit.Wrap(upstream, float64(cfg.Upstream.MaxRequestsPerMinute), cfg.Upstream.Burst, cfg.MinRequestInterval())

	retry := marketdata.NewRetrySettings(RetryConfig(cfg))
	client := marketdata.New(upstream,
		marketdata.WithStore(store),
		marketdata.WithTTL(cfg.CacheTTL()),
		marketdata.WithRetryConfig(retry),
		marketdata.WithLogger(logger),
		marketdata.WithMetrics(m),
	)

	logger.Info("market data client ready",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Duration("cache_ttl", cfg.CacheTTL()),
		zap.Int("max_retries", cfg.Retry.MaxRetries),
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Store:   store,
		Retry:   retry,
		Client:  client,
	}, nil
}

func newYahoo(cfg config.Config) *yahoo.Client {
	hc := httpx.New(cfg.UpstreamTimeout())
	if cfg.Upstream.UserAgent != "" {
		hc.UserAgent = cfg.Upstream.UserAgent
	}
	hc.Headers = map[string]string{"Accept": "application/json"}

	return yahoo.NewClient(
		yahoo.WithHTTPClient(hc),
		yahoo.WithBaseURL(cfg.Upstream.BaseURL),
		yahoo.WithCookieURL(cfg.Upstream.CookieURL),
		yahoo.WithSearchCount(cfg.Upstream.SearchCount),
		yahoo.WithHeader(http.Header{"Accept-Language": []string{"en-US,en;q=0.9"}}),
	)
}

// Close releases the cache backend and flushes the logger.
func (a *App) Close() error {
	err := a.Store.Close()
	_ = a.Logger.Sync()
	return err
}
