package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dividendquotes/internal/dividend"
	"dividendquotes/internal/marketdata"
	"dividendquotes/internal/metrics"
	"dividendquotes/internal/provider"
)

const (
	dateLayout     = "2006-01-02"
	maxSymbols     = 50
	defaultTimeout = 15 * time.Second
)

type server struct {
	client  *marketdata.Client
	retry   *marketdata.RetrySettings
	metrics *metrics.Metrics
	logger  *zap.Logger

	timeout        time.Duration
	maxConcurrency int
}

func newServer(client *marketdata.Client, retry *marketdata.RetrySettings, m *metrics.Metrics, logger *zap.Logger) *server {
	return &server{
		client:         client,
		retry:          retry,
		metrics:        m,
		logger:         logger.Named("http"),
		timeout:        defaultTimeout,
		maxConcurrency: 4,
	}
}

func (s *server) routes() http.Handler {
	r := httprouter.New()
	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.GET("/api/quote/:symbol", s.instrument("quote", s.handleQuote))
	r.GET("/api/history/:symbol", s.instrument("history", s.handleHistory))
	r.GET("/api/search", s.instrument("search", s.handleSearch))
	r.GET("/api/dividends", s.instrument("dividends", s.handleDividends))
	r.POST("/api/admin/cache/clear", s.instrument("cache_clear", s.handleClearCache))
	r.GET("/api/admin/retry", s.instrument("retry_get", s.handleGetRetry))
	r.PUT("/api/admin/retry", s.instrument("retry_put", s.handlePutRetry))
	r.HandleOPTIONS = false

	return withRequestID(withJSONHeaders(withGzip(recoverPanic(s.logger, limitBody(r)))))
}

// instrument bounds the request by the server timeout and records its
// outcome.
func (s *server) instrument(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r.WithContext(ctx), ps)

		s.metrics.HTTPRequest(route, sw.status)
		s.logger.Info("request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(started)),
		)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type quoteResponse struct {
	Symbol  string                `json:"symbol"`
	Summary provider.QuoteSummary `json:"summary"`
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	symbol := strings.ToUpper(strings.TrimSpace(ps.ByName("symbol")))
	modules := splitCSV(r.URL.Query().Get("modules"))
	qs, err := s.client.QuoteSummary(r.Context(), symbol, modules...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Symbol: symbol, Summary: qs})
}

type historyResponse struct {
	Symbol   string            `json:"symbol"`
	Interval provider.Interval `json:"interval"`
	Bars     []provider.Bar    `json:"bars"`
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	q := r.URL.Query()
	start, err := parseDate(q.Get("start"), time.Time{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseDate(q.Get("end"), time.Now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	interval, err := provider.ParseInterval(q.Get("interval"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", marketdata.ErrInvalidArgument, err))
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(ps.ByName("symbol")))
	bars, err := s.client.HistoricalData(r.Context(), symbol, start, end, interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bars == nil {
		bars = []provider.Bar{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Symbol: symbol, Interval: interval, Bars: bars})
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Results []provider.SearchResult `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query().Get("q")
	results, err := s.client.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []provider.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results})
}

type dividendsResponse struct {
	Dividends []dividend.Snapshot `json:"dividends"`
}

// handleDividends fetches every symbol concurrently. Any failure fails the
// whole request.
func (s *server) handleDividends(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: missing symbols query param", marketdata.ErrInvalidArgument))
		return
	}
	if len(symbols) > maxSymbols {
		s.writeError(w, r, fmt.Errorf("%w: too many symbols (max %d)", marketdata.ErrInvalidArgument, maxSymbols))
		return
	}

	out := make([]dividend.Snapshot, len(symbols))
	g, ctx := errgroup.WithContext(r.Context())
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, sym := range symbols {
		g.Go(func() error {
			qs, err := s.client.QuoteSummary(ctx, sym, dividend.Modules...)
			if err != nil {
				return err
			}
			snap, err := dividend.FromSummary(sym, qs)
			if err != nil {
				return err
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}
	dividend.SortByYield(out)
	writeJSON(w, http.StatusOK, dividendsResponse{Dividends: out})
}

func (s *server) handleClearCache(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.client.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// retryDTO is the wire form of the retry tuning. On PUT, absent fields are
// left unchanged.
type retryDTO struct {
	MaxRetries          *int  `json:"max_retries,omitempty"`
	InvalidCrumbRetries *int  `json:"invalid_crumb_retries,omitempty"`
	InvalidCrumbDelayMs *int  `json:"invalid_crumb_delay_ms,omitempty"`
	ExponentialBackoff  *bool `json:"exponential_backoff,omitempty"`
}

func toRetryDTO(cfg marketdata.RetryConfig) retryDTO {
	delay := int(cfg.InvalidCrumbDelay / time.Millisecond)
	return retryDTO{
		MaxRetries:          &cfg.MaxRetries,
		InvalidCrumbRetries: &cfg.InvalidCrumbRetries,
		InvalidCrumbDelayMs: &delay,
		ExponentialBackoff:  &cfg.ExponentialBackoff,
	}
}

func (d retryDTO) validate() error {
	for name, v := range map[string]*int{
		"max_retries":            d.MaxRetries,
		"invalid_crumb_retries":  d.InvalidCrumbRetries,
		"invalid_crumb_delay_ms": d.InvalidCrumbDelayMs,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must not be negative", marketdata.ErrInvalidArgument, name)
		}
	}
	return nil
}

func (d retryDTO) apply(cfg *marketdata.RetryConfig) {
	if d.MaxRetries != nil {
		cfg.MaxRetries = *d.MaxRetries
	}
	if d.InvalidCrumbRetries != nil {
		cfg.InvalidCrumbRetries = *d.InvalidCrumbRetries
	}
	if d.InvalidCrumbDelayMs != nil {
		cfg.InvalidCrumbDelay = time.Duration(*d.InvalidCrumbDelayMs) * time.Millisecond
	}
	if d.ExponentialBackoff != nil {
		cfg.ExponentialBackoff = *d.ExponentialBackoff
	}
}

func (s *server) handleGetRetry(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, toRetryDTO(s.retry.RetryConfig()))
}

func (s *server) handlePutRetry(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var d retryDTO
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid JSON body", marketdata.ErrInvalidArgument))
		return
	}
	if err := d.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.retry.Update(d.apply)
	cfg := s.retry.RetryConfig()
	s.logger.Info("retry settings updated",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("invalid_crumb_retries", cfg.InvalidCrumbRetries),
		zap.Duration("invalid_crumb_delay", cfg.InvalidCrumbDelay),
		zap.Bool("exponential_backoff", cfg.ExponentialBackoff),
	)
	writeJSON(w, http.StatusOK, toRetryDTO(cfg))
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError answers with the status the classifier picks for err. Partial
// payloads are never written.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := marketdata.HTTPStatus(err)
	resp := errorResponse{Error: err.Error()}
	switch {
	case errors.Is(err, marketdata.ErrInvalidArgument):
	case errors.Is(err, dividend.ErrNoPrice):
		status = http.StatusNotFound
		resp.Kind = marketdata.KindInvalidSymbol.String()
	default:
		resp.Kind = marketdata.Classify(err).String()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("kind", resp.Kind),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// parseDate reads a YYYY-MM-DD date. Empty yields def.
func parseDate(s string, def time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates must be YYYY-MM-DD, got %q", marketdata.ErrInvalidArgument, s)
	}
	return t, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
