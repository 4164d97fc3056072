package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"dividendquotes/internal/provider"
)

// Search looks up instruments matching query.
func (c *Client) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("quotesCount", strconv.Itoa(c.searchCount))
	q.Set("newsCount", "0")
	q.Set("enableFuzzyQuery", "false")

	body, err := c.get(ctx, "/v1/finance/search", q, query)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding search response: invalid JSON")
	}

	quotes := gjson.GetBytes(body, "quotes").Array()
	out := make([]provider.SearchResult, 0, len(quotes))
	for _, item := range quotes {
		// {"symbol":"KO","shortname":"Coca-Cola Company (The)","longname":"The Coca-Cola Company",
		//  "exchange":"NYQ","exchDisp":"NYSE","quoteType":"EQUITY"}
		symbol := item.Get("symbol").String()
		if symbol == "" {
			continue
		}
		exchange := item.Get("exchDisp").String()
		if exchange == "" {
			exchange = item.Get("exchange").String()
		}
		out = append(out, provider.SearchResult{
			Symbol:    symbol,
			ShortName: item.Get("shortname").String(),
			LongName:  item.Get("longname").String(),
			Exchange:  exchange,
			QuoteType: item.Get("quoteType").String(),
		})
	}
	return out, nil
}
