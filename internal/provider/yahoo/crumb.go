package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// crumbTimeout bounds a shared crumb refresh, which no single caller's
// context may cancel.
const crumbTimeout = 10 * time.Second

// getCrumb returns the cached crumb or fetches a new one. Concurrent callers
// that miss share a single refresh; each stops waiting when its own context
// is done.
func (c *Client) getCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	crumb := c.crumb
	c.mu.Unlock()
	if crumb != "" {
		return crumb, nil
	}

	ch := c.sf.DoChan("crumb", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), crumbTimeout)
		defer cancel()
		crumb, err := c.fetchCrumb(fctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.crumb = crumb
		c.mu.Unlock()
		return crumb, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// resetCrumb drops the cached crumb.
func (c *Client) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}

// fetchCrumb primes the session cookie and then asks for a crumb bound to it.
func (c *Client) fetchCrumb(ctx context.Context) (string, error) {
	if c.cookieURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, http.NoBody)
		if err != nil {
			return "", fmt.Errorf("creating cookie request: %w", err)
		}
		req.Header = c.header.Clone()
		res, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("performing cookie request: %w", err)
		}
		// The cookie endpoint usually answers 404; only its Set-Cookie matters.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
		res.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+crumbPath, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating crumb request: %w", err)
	}
	req.Header = c.header.Clone()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing crumb request: %w", err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("reading crumb: %w", err)
	}
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", errors.New(http.StatusText(http.StatusTooManyRequests))
	default:
		return "", fmt.Errorf("unexpected status code fetching crumb: %d", res.StatusCode)
	}

	crumb := strings.TrimSpace(string(b))
	if crumb == "" || strings.ContainsAny(crumb, "{<") {
		return "", fmt.Errorf("unexpected crumb body: %q", crumb)
	}
	return crumb, nil
}
