package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuoteSummary is the upstream quote-summary payload keyed by module name
// (e.g. "price", "summaryDetail"). Module bodies are kept raw.
type QuoteSummary map[string]json.RawMessage

// Bar is one OHLCV point of a historical series.
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// SearchResult describes an instrument matched by a free-text search.
type SearchResult struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"short_name,omitempty"`
	LongName  string `json:"long_name,omitempty"`
	Exchange  string `json:"exchange,omitempty"`
	QuoteType string `json:"quote_type,omitempty"`
}

// Interval is the granularity of a historical series.
type Interval string

const (
	Daily   Interval = "1d"
	Weekly  Interval = "1wk"
	Monthly Interval = "1mo"
)

// ParseInterval accepts the wire values and the long names
// ("daily", "weekly", "monthly"). Empty means Daily.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1d", "daily", "day":
		return Daily, nil
	case "1wk", "weekly", "week":
		return Weekly, nil
	case "1mo", "monthly", "month":
		return Monthly, nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// HistoryQuery bounds a historical series request.
type HistoryQuery struct {
	Start    time.Time
	End      time.Time
	Interval Interval
}

// Upstream is the remote quote-and-search provider.
//
//go:generate mockgen -package=marketdata_test -destination=../marketdata/mock_upstream_test.go -source=provider.go Upstream
type Upstream interface {
	QuoteSummary(ctx context.Context, symbol string, modules []string) (QuoteSummary, error)
	Chart(ctx context.Context, symbol string, q HistoryQuery) ([]Bar, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
