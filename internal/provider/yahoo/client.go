package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"dividendquotes/internal/provider"
)

const (
	baseURL   = "https://query1.finance.yahoo.com"
	cookieURL = "https://fc.yahoo.com"
	crumbPath = "/v1/test/getcrumb"

	// maxErrorBody caps how much of a failed response is kept for the error text.
	maxErrorBody = 2 << 10
)

// InvalidCrumbMessage is the exact description the upstream sends when it
// rejects the crumb.
const InvalidCrumbMessage = "Invalid Crumb"

// ErrInvalidCrumb is returned when the upstream rejects the current crumb.
// The crumb is dropped before it is returned, so the next call fetches a new one.
var ErrInvalidCrumb = errors.New(InvalidCrumbMessage)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Yahoo Finance query endpoints.
type Client struct {
	// baseURL is the base URL for the query API.
	baseURL string
	// cookieURL is fetched once to obtain the session cookie the crumb is bound to.
	cookieURL string
	// httpClient is the HTTP client. It must keep cookies between requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// searchCount is the number of quotes asked for by Search.
	searchCount int

	mu    sync.Mutex
	crumb string
	sf    singleflight.Group
}

var _ provider.Upstream = (*Client)(nil)

// ClientOption is a configuration option for the Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the query API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCookieURL sets the URL fetched to obtain the session cookie.
// An empty URL skips the cookie step.
func WithCookieURL(cookieURL string) ClientOption {
	return func(c *Client) {
		c.cookieURL = cookieURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithSearchCount sets how many quotes Search asks for.
func WithSearchCount(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.searchCount = n
		}
	}
}

// NewClient creates a new Client.
func NewClient(options ...ClientOption) *Client {
	var client = &Client{
		baseURL:     baseURL,
		cookieURL:   cookieURL,
		httpClient:  http.DefaultClient,
		header:      http.Header{},
		searchCount: 10,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// get performs an authenticated GET against path and returns the body of a
// 2xx response. Non-2xx responses are turned into errors by statusError.
func (c *Client) get(ctx context.Context, path string, query url.Values, subject string) ([]byte, error) {
	crumb, err := c.getCrumb(ctx)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("crumb", crumb)

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, c.statusError(res.StatusCode, b, subject)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// statusError maps a failed response onto the error texts callers classify.
func (c *Client) statusError(status int, body []byte, subject string) error {
	desc := errorDescription(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.resetCrumb()
		if desc == InvalidCrumbMessage {
			return ErrInvalidCrumb
		}
		if desc == "" {
			desc = http.StatusText(status)
		}
		return fmt.Errorf("unauthorized: %s", desc)

	case http.StatusNotFound:
		if desc == "" {
			desc = subject
		}
		return fmt.Errorf("not found: %s", desc)

	case http.StatusTooManyRequests:
		return errors.New(http.StatusText(http.StatusTooManyRequests))

	default:
		if desc == "" {
			desc = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("unexpected status code: %d: %s", status, desc)
	}
}

// errorDescription pulls the description out of the envelopes the API uses:
// {"finance":{"error":...}}, {"quoteSummary":{"error":...}}, {"chart":{"error":...}}.
func errorDescription(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"finance.error.description", "quoteSummary.error.description", "chart.error.description"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// envelopeError reports an error object embedded in a 200 response.
func (c *Client) envelopeError(envelope gjson.Result, subject string) error {
	e := envelope.Get("error")
	if !e.Exists() || e.Type == gjson.Null {
		return nil
	}
	desc := e.Get("description").String()
	code := e.Get("code").String()
	if desc == InvalidCrumbMessage {
		c.resetCrumb()
		return ErrInvalidCrumb
	}
	if strings.EqualFold(code, "Not Found") {
		if desc == "" {
			desc = subject
		}
		return fmt.Errorf("not found: %s", desc)
	}
	if desc == "" {
		desc = code
	}
	return fmt.Errorf("upstream error: %s", desc)
}
