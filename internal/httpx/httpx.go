package httpx

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultUserAgent is sent when the request carries none. The quotes
// upstream rejects requests without a browser-like agent.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Client is a small wrapper around http.Client with sane defaults.
// It keeps a cookie jar so session cookies survive between requests.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	// cookiejar.New only fails on a bad PublicSuffixList; nil never does.
	jar, _ := cookiejar.New(nil)
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport, Jar: jar},
		UserAgent: DefaultUserAgent,
	}
}

// Do sends req after filling in the default headers. It satisfies the
// HTTPClient interfaces of the upstream packages.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

