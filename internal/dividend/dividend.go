package dividend

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"dividendquotes/internal/provider"
)

// Modules are the quote-summary modules a Snapshot is built from.
var Modules = []string{"price", "summaryDetail", "calendarEvents"}

// ErrNoPrice is returned when the summary carries no usable price module.
var ErrNoPrice = errors.New("quote summary has no price")

// Snapshot is the dividend view of one instrument.
type Snapshot struct {
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Price          float64    `json:"price"`
	Rate           float64    `json:"rate"`
	Yield          float64    `json:"yield"`
	TrailingRate   float64    `json:"trailing_rate,omitempty"`
	PayoutRatio    float64    `json:"payout_ratio,omitempty"`
	FiveYearYield  float64    `json:"five_year_avg_yield,omitempty"`
	ExDividendDate *time.Time `json:"ex_dividend_date,omitempty"`
	PaymentDate    *time.Time `json:"payment_date,omitempty"`
}

// FromSummary builds a Snapshot for symbol. Values may be plain numbers or
// the {"raw": n, "fmt": "..."} objects the upstream sends unless asked not to.
// When the upstream omits the yield it is derived from rate and price.
func FromSummary(symbol string, qs provider.QuoteSummary) (Snapshot, error) {
	price := gjson.ParseBytes(qs["price"])
	detail := gjson.ParseBytes(qs["summaryDetail"])
	events := gjson.ParseBytes(qs["calendarEvents"])

	s := Snapshot{Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
	if v := price.Get("symbol").String(); v != "" {
		s.Symbol = v
	}

	s.Price = number(price, "regularMarketPrice")
	if s.Price == 0 {
		s.Price = number(detail, "previousClose")
	}
	if s.Price == 0 {
		return Snapshot{}, ErrNoPrice
	}

	s.Name = price.Get("longName").String()
	if s.Name == "" {
		s.Name = price.Get("shortName").String()
	}
	s.Currency = price.Get("currency").String()
	if s.Currency == "" {
		s.Currency = detail.Get("currency").String()
	}

	s.Rate = number(detail, "dividendRate")
	s.TrailingRate = number(detail, "trailingAnnualDividendRate")
	s.PayoutRatio = number(detail, "payoutRatio")
	s.FiveYearYield = number(detail, "fiveYearAvgDividendYield")
	s.Yield = number(detail, "dividendYield")
	if s.Yield == 0 && s.Rate > 0 {
		s.Yield = s.Rate / s.Price
	}

	s.ExDividendDate = date(events, "exDividendDate")
	if s.ExDividendDate == nil {
		s.ExDividendDate = date(detail, "exDividendDate")
	}
	s.PaymentDate = date(events, "dividendDate")
	return s, nil
}

// SortByYield orders snapshots by yield, highest first. Equal yields are
// ordered by symbol.
func SortByYield(in []Snapshot) {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Yield != in[j].Yield {
			return in[i].Yield > in[j].Yield
		}
		return in[i].Symbol < in[j].Symbol
	})
}

func number(r gjson.Result, key string) float64 {
	v := r.Get(key)
	if v.IsObject() {
		v = v.Get("raw")
	}
	if v.Type != gjson.Number {
		return 0
	}
	return v.Float()
}

// date reads an epoch-seconds field as a UTC date.
func date(r gjson.Result, key string) *time.Time {
	v := r.Get(key)
	if v.IsObject() {
		v = v.Get("raw")
	}
	if v.Type != gjson.Number || v.Int() <= 0 {
		return nil
	}
	t := time.Unix(v.Int(), 0).UTC()
	return &t
}
