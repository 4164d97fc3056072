package marketdata

import (
	"encoding/json"
	"strings"
	"time"
)

// Operation names, used in fingerprints, logs and metrics.
const (
	OpQuoteSummary = "quoteSummary"
	OpHistorical   = "historical"
	OpSearch       = "search"
)

const dateLayout = "2006-01-02"

// fingerprint builds the cache key for op called with args. The arguments
// must already be normalized; their order is significant.
func fingerprint(op string, args ...any) string {
	// Arguments are strings, string slices and dates; Marshal cannot fail on them.
	b, _ := json.Marshal(args)
	return op + ":" + string(b)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// normalizeModules trims names and drops blanks, keeping caller order.
func normalizeModules(modules []string) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// day truncates t to its UTC calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
