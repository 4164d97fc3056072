package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dividendquotes/internal/dividend"
	"dividendquotes/internal/marketdata"
	"dividendquotes/internal/metrics"
	"dividendquotes/internal/provider"
)

// fakeUpstream serves canned summaries per symbol and counts calls.
type fakeUpstream struct {
	mu        sync.Mutex
	summaries map[string]provider.QuoteSummary
	errs      map[string]error
	bars      []provider.Bar
	results   []provider.SearchResult
	calls     int
}

func (f *fakeUpstream) QuoteSummary(_ context.Context, symbol string, _ []string) (provider.QuoteSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	qs, ok := f.summaries[symbol]
	if !ok {
		return nil, errors.New("not found: " + symbol)
	}
	return qs, nil
}

func (f *fakeUpstream) Chart(context.Context, string, provider.HistoryQuery) ([]provider.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.bars, nil
}

func (f *fakeUpstream) Search(context.Context, string) ([]provider.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, nil
}

func divSummary(price, rate float64) provider.QuoteSummary {
	p, _ := json.Marshal(map[string]any{"regularMarketPrice": price, "currency": "USD"})
	d, _ := json.Marshal(map[string]any{"dividendRate": rate})
	return provider.QuoteSummary{"price": p, "summaryDetail": d}
}

type testServer struct {
	up      *fakeUpstream
	retry   *marketdata.RetrySettings
	metrics *metrics.Metrics
	handler http.Handler
}

func newTestServer(t *testing.T, up *fakeUpstream) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	retry := marketdata.NewRetrySettings(marketdata.DefaultRetryConfig())
	m := metrics.New("test")
	client := marketdata.New(up,
		marketdata.WithRetryConfig(retry),
		marketdata.WithLogger(logger),
		marketdata.WithMetrics(m),
		marketdata.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	s := newServer(client, retry, m, logger)
	return &testServer{up: up, retry: retry, metrics: m, handler: s.routes()}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})
	rr := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestRequestID_Echoed(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	require.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestQuote_OK(t *testing.T) {
	up := &fakeUpstream{summaries: map[string]provider.QuoteSummary{"KO": divSummary(60, 1.94)}}
	ts := newTestServer(t, up)

	rr := ts.do(t, http.MethodGet, "/api/quote/ko?modules=price,summaryDetail", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[quoteResponse](t, rr)
	require.Equal(t, "KO", resp.Symbol)
	require.JSONEq(t, `{"regularMarketPrice":60,"currency":"USD"}`, string(resp.Summary["price"]))
}

func TestQuote_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid symbol", errors.New("not found: No data for ZZZZ"), http.StatusNotFound, "InvalidSymbol"},
		{"rate limited", errors.New("Too Many Requests"), http.StatusTooManyRequests, "RateLimited"},
		{"network", errors.New("Network Error"), http.StatusInternalServerError, "Network"},
		{"crumb exhausted", errors.New("Invalid Crumb"), http.StatusInternalServerError, "InvalidCredential"},
		{"server", errors.New("boom"), http.StatusInternalServerError, "Server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{errs: map[string]error{"ZZZZ": tt.err}}
			ts := newTestServer(t, up)

			rr := ts.do(t, http.MethodGet, "/api/quote/ZZZZ", "")

			require.Equal(t, tt.status, rr.Code)
			resp := decode[errorResponse](t, rr)
			require.Equal(t, tt.kind, resp.Kind)
			require.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestHistory(t *testing.T) {
	bars := []provider.Bar{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 10, AdjClose: 10, Volume: 5}}
	ts := newTestServer(t, &fakeUpstream{bars: bars})

	rr := ts.do(t, http.MethodGet, "/api/history/KO?start=2024-01-01&end=2024-01-31&interval=weekly", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[historyResponse](t, rr)
	require.Equal(t, provider.Weekly, resp.Interval)
	require.Len(t, resp.Bars, 1)
}

func TestHistory_BadRequests(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})
	for _, target := range []string{
		"/api/history/KO?start=01/01/2024",
		"/api/history/KO",
		"/api/history/KO?start=2024-02-01&end=2024-01-01",
		"/api/history/KO?start=2024-01-01&interval=5m",
	} {
		rr := ts.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
	require.Zero(t, ts.up.calls)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{results: []provider.SearchResult{{Symbol: "KO", ShortName: "Coca-Cola"}}})

	rr := ts.do(t, http.MethodGet, "/api/search?q=coca", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "KO", decode[searchResponse](t, rr).Results[0].Symbol)

	rr = ts.do(t, http.MethodGet, "/api/search", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDividends_SortedByYield(t *testing.T) {
	up := &fakeUpstream{summaries: map[string]provider.QuoteSummary{
		"KO": divSummary(60, 1.8),
		"T":  divSummary(17, 1.11),
		"MO": divSummary(45, 3.92),
	}}
	ts := newTestServer(t, up)

	rr := ts.do(t, http.MethodGet, "/api/dividends?symbols=KO,T,MO", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[dividendsResponse](t, rr)
	require.Len(t, resp.Dividends, 3)
	got := []string{resp.Dividends[0].Symbol, resp.Dividends[1].Symbol, resp.Dividends[2].Symbol}
	require.Equal(t, []string{"MO", "T", "KO"}, got)
}

func TestDividends_AnyFailureFailsRequest(t *testing.T) {
	up := &fakeUpstream{
		summaries: map[string]provider.QuoteSummary{"KO": divSummary(60, 1.8)},
		errs:      map[string]error{"XYZ": errors.New("Too Many Requests")},
	}
	ts := newTestServer(t, up)

	rr := ts.do(t, http.MethodGet, "/api/dividends?symbols=KO,XYZ", "")

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	resp := decode[errorResponse](t, rr)
	require.Equal(t, "RateLimited", resp.Kind)
}

func TestDividends_Validation(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})

	rr := ts.do(t, http.MethodGet, "/api/dividends", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	many := strings.TrimSuffix(strings.Repeat("A,", maxSymbols+1), ",")
	rr = ts.do(t, http.MethodGet, "/api/dividends?symbols="+many, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDividends_NoPriceIsNotFound(t *testing.T) {
	up := &fakeUpstream{summaries: map[string]provider.QuoteSummary{"X": {"price": json.RawMessage(`{}`)}}}
	ts := newTestServer(t, up)

	rr := ts.do(t, http.MethodGet, "/api/dividends?symbols=X", "")

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, dividend.ErrNoPrice.Error(), decode[errorResponse](t, rr).Error)
}

func TestClearCache_ForcesRefetch(t *testing.T) {
	up := &fakeUpstream{summaries: map[string]provider.QuoteSummary{"KO": divSummary(60, 1.8)}}
	ts := newTestServer(t, up)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/quote/KO", "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/quote/KO", "").Code)
	require.Equal(t, 1, up.calls)

	rr := ts.do(t, http.MethodPost, "/api/admin/cache/clear", "")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/quote/KO", "").Code)
	require.Equal(t, 2, up.calls)
}

func TestRetrySettings_GetAndPut(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})

	rr := ts.do(t, http.MethodGet, "/api/admin/retry", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"max_retries":3,"invalid_crumb_retries":3,"invalid_crumb_delay_ms":1000,"exponential_backoff":true}`, rr.Body.String())

	rr = ts.do(t, http.MethodPut, "/api/admin/retry", `{"max_retries":5,"invalid_crumb_delay_ms":250}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, marketdata.RetryConfig{
		MaxRetries:          5,
		InvalidCrumbRetries: 3,
		InvalidCrumbDelay:   250 * time.Millisecond,
		ExponentialBackoff:  true,
	}, ts.retry.RetryConfig())
}

func TestRetrySettings_PutRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})
	for _, body := range []string{
		`{"max_retries":-1}`,
		`{"unknown":1}`,
		`not json`,
	} {
		rr := ts.do(t, http.MethodPut, "/api/admin/retry", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	require.Equal(t, marketdata.DefaultRetryConfig(), ts.retry.RetryConfig())
}

func TestGzip(t *testing.T) {
	ts := newTestServer(t, &fakeUpstream{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()

	ts.handler.ServeHTTP(rr, req)

	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(b))
}

func TestMetricsEndpoint(t *testing.T) {
	up := &fakeUpstream{summaries: map[string]provider.QuoteSummary{"KO": divSummary(60, 1.8)}}
	ts := newTestServer(t, up)
	ts.do(t, http.MethodGet, "/api/quote/KO", "")

	rr := ts.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `test_http_requests_total{route="quote",status="200"} 1`)
}

func TestRecoverPanic(t *testing.T) {
	h := recoverPanic(zaptest.NewLogger(t), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
