package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"dividendquotes/internal/provider"
)

// DefaultModules are requested when QuoteSummary is called without modules.
var DefaultModules = []string{"price", "summaryDetail"}

// QuoteSummary fetches the requested quoteSummary modules for symbol.
func (c *Client) QuoteSummary(ctx context.Context, symbol string, modules []string) (provider.QuoteSummary, error) {
	if len(modules) == 0 {
		modules = DefaultModules
	}
	query := url.Values{}
	query.Set("modules", strings.Join(modules, ","))
	query.Set("formatted", "false")

	body, err := c.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), query, symbol)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding quoteSummary response: invalid JSON")
	}

	// {
	//   "quoteSummary": {
	//     "result": [{"price": {...}, "summaryDetail": {...}}],
	//     "error": null
	//   }
	// }
	envelope := gjson.GetBytes(body, "quoteSummary")
	if err := c.envelopeError(envelope, symbol); err != nil {
		return nil, err
	}
	result := envelope.Get("result.0")
	if !result.Exists() || !result.IsObject() {
		return nil, fmt.Errorf("not found: no quote summary for %s", symbol)
	}

	summary := provider.QuoteSummary{}
	result.ForEach(func(key, value gjson.Result) bool {
		summary[key.String()] = json.RawMessage(value.Raw)
		return true
	})
	return summary, nil
}
