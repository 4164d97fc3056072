package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"dividendquotes/internal/provider"
)

// Chart fetches the OHLCV series for symbol over q.
func (c *Client) Chart(ctx context.Context, symbol string, q provider.HistoryQuery) ([]provider.Bar, error) {
	interval := q.Interval
	if interval == "" {
		interval = provider.Daily
	}
	query := url.Values{}
	query.Set("period1", strconv.FormatInt(q.Start.Unix(), 10))
	query.Set("period2", strconv.FormatInt(q.End.Unix(), 10))
	query.Set("interval", string(interval))
	query.Set("events", "div")
	query.Set("includeAdjustedClose", "true")

	body, err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query, symbol)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding chart response: invalid JSON")
	}

	envelope := gjson.GetBytes(body, "chart")
	if err := c.envelopeError(envelope, symbol); err != nil {
		return nil, err
	}
	result := envelope.Get("result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("not found: no chart data for %s", symbol)
	}
	return parseBars(result), nil
}

// parseBars zips the parallel arrays of a chart result into bars.
// Points without a close are skipped; the upstream emits nulls for
// halted or not-yet-settled sessions.
func parseBars(result gjson.Result) []provider.Bar {
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	adj := result.Get("indicators.adjclose.0.adjclose").Array()

	at := func(a []gjson.Result, i int) gjson.Result {
		if i < len(a) {
			return a[i]
		}
		return gjson.Result{}
	}

	bars := make([]provider.Bar, 0, len(timestamps))
	for i, ts := range timestamps {
		cl := at(closes, i)
		if cl.Type != gjson.Number {
			continue
		}
		bar := provider.Bar{
			Date:     time.Unix(ts.Int(), 0).UTC(),
			Open:     at(opens, i).Float(),
			High:     at(highs, i).Float(),
			Low:      at(lows, i).Float(),
			Close:    cl.Float(),
			AdjClose: cl.Float(),
			Volume:   at(volumes, i).Int(),
		}
		if a := at(adj, i); a.Type == gjson.Number {
			bar.AdjClose = a.Float()
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}
