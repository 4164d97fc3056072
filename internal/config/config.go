package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	// MaxConcurrency bounds the upstream fan-out of one dividends request.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
}

type Upstream struct {
	BaseURL              string `json:"base_url" yaml:"base_url"`
	CookieURL            string `json:"cookie_url" yaml:"cookie_url"`
	UserAgent            string `json:"user_agent" yaml:"user_agent"`
	TimeoutSec           int    `json:"timeout_sec" yaml:"timeout_sec"`
	SearchCount          int    `json:"search_count" yaml:"search_count"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int    `json:"burst" yaml:"burst"`
	MinRequestIntervalMs int    `json:"min_request_interval_ms" yaml:"min_request_interval_ms"`
}

type Cache struct {
	// Backend is one of memory, bbolt, redis.
	Backend       string `json:"backend" yaml:"backend"`
	TTLSeconds    int    `json:"ttl_sec" yaml:"ttl_sec"`
	MaxItems      int    `json:"max_items" yaml:"max_items"`
	Path          string `json:"path" yaml:"path"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`
}

type Retry struct {
	MaxRetries          int  `json:"max_retries" yaml:"max_retries"`
	InvalidCrumbRetries int  `json:"invalid_crumb_retries" yaml:"invalid_crumb_retries"`
	InvalidCrumbDelayMs int  `json:"invalid_crumb_delay_ms" yaml:"invalid_crumb_delay_ms"`
	ExponentialBackoff  bool `json:"exponential_backoff" yaml:"exponential_backoff"`
}

type Logging struct {
	Level string `json:"level" yaml:"level"`
}

type Metrics struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Upstream Upstream `json:"upstream" yaml:"upstream"`
	Cache    Cache    `json:"cache" yaml:"cache"`
	Retry    Retry    `json:"retry" yaml:"retry"`
	Logging  Logging  `json:"logging" yaml:"logging"`
	Metrics  Metrics  `json:"metrics" yaml:"metrics"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15, MaxConcurrency: 4},
		Upstream: Upstream{
			BaseURL:              "https://query1.finance.yahoo.com",
			CookieURL:            "https://fc.yahoo.com",
			TimeoutSec:           10,
			SearchCount:          10,
			MaxRequestsPerMinute: 60,
			Burst:                5,
		},
		Cache: Cache{
			Backend:    "memory",
			TTLSeconds: 300,
			MaxItems:   10000,
			Path:       "data/cache.db",
			RedisAddr:  "localhost:6379",
		},
		Retry: Retry{
			MaxRetries:          3,
			InvalidCrumbRetries: 3,
			InvalidCrumbDelayMs: 1000,
			ExponentialBackoff:  true,
		},
		Logging: Logging{Level: "info"},
		Metrics: Metrics{Enabled: true, Namespace: "dividendquotes"},
	}
}

// candidates are tried in order when no path is given.
var candidates = []string{"config.yaml", "config.yml", "config.json"}

// Load reads config from path, as YAML or JSON by extension. If path is empty
// the first existing candidate in the working directory is used; with none,
// or if path does not exist, it returns defaults. Environment variables
// override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// RequestTimeout is the per-request deadline of the HTTP server.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// UpstreamTimeout is the HTTP client timeout for upstream calls.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSec) * time.Second
}

// MinRequestInterval is the enforced gap between upstream calls.
func (c Config) MinRequestInterval() time.Duration {
	return time.Duration(c.Upstream.MinRequestIntervalMs) * time.Millisecond
}

// CacheTTL is how long cached responses are served. Zero disables caching.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// InvalidCrumbDelay is the wait before the first crumb retry.
func (c Config) InvalidCrumbDelay() time.Duration {
	return time.Duration(c.Retry.InvalidCrumbDelayMs) * time.Millisecond
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	envInt("SERVER_MAX_CONCURRENCY", 1, &cfg.Server.MaxConcurrency)

	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v, ok := os.LookupEnv("UPSTREAM_COOKIE_URL"); ok {
		cfg.Upstream.CookieURL = v
	}
	if v := os.Getenv("UPSTREAM_USER_AGENT"); v != "" {
		cfg.Upstream.UserAgent = v
	}
	envInt("UPSTREAM_TIMEOUT_SEC", 1, &cfg.Upstream.TimeoutSec)
	envInt("UPSTREAM_MAX_RPM", 0, &cfg.Upstream.MaxRequestsPerMinute)
	envInt("UPSTREAM_BURST", 1, &cfg.Upstream.Burst)
	envInt("UPSTREAM_MIN_INTERVAL_MS", 0, &cfg.Upstream.MinRequestIntervalMs)

	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	envInt("CACHE_TTL_SEC", 0, &cfg.Cache.TTLSeconds)
	envInt("CACHE_MAX_ITEMS", 1, &cfg.Cache.MaxItems)
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	envInt("REDIS_DB", 0, &cfg.Cache.RedisDB)

	envInt("RETRY_MAX_RETRIES", 0, &cfg.Retry.MaxRetries)
	envInt("RETRY_INVALID_CRUMB_RETRIES", 0, &cfg.Retry.InvalidCrumbRetries)
	envInt("RETRY_INVALID_CRUMB_DELAY_MS", 0, &cfg.Retry.InvalidCrumbDelayMs)
	if v := os.Getenv("RETRY_EXPONENTIAL_BACKOFF"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Retry.ExponentialBackoff = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Metrics.Enabled = b
		}
	}
}

// envInt sets *dst from the named variable when it holds a whole integer of
// at least min. Anything else leaves *dst untouched.
func envInt(name string, min int, dst *int) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	x, err := strconv.Atoi(v)
	if err != nil || x < min {
		return
	}
	*dst = x
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}
