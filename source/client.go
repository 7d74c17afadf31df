// Package source implements the upstream adapters of the enrichment
// pipeline. Each adapter issues rate-limited requests against one
// bibliographic service and normalizes its payload at the boundary; callers
// only ever see the canonical shapes and the outcome taxonomy in errors.go.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"bookenrich/ratelimit"
)

// client bundles the transport concerns shared by the JSON adapters: one
// http.Client, a per-host limiter token acquired before every call, and a
// bounded retry loop for transient failures.
type client struct {
	http    *http.Client
	ua      string
	limiter ratelimit.Limiter
	retries int
	host    string
}

func newClient(baseURL, ua string, timeout time.Duration, limiter ratelimit.Limiter, retries int) client {
	host := baseURL
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return client{
		http:    &http.Client{Timeout: timeout},
		ua:      ua,
		limiter: limiter,
		retries: retries,
		host:    host,
	}
}

// getBody fetches url and returns the raw response body. Transient failures
// are retried with exponential backoff; NotFound and Blocked outcomes return
// immediately.
func (c *client) getBody(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, TransientError{Err: ctx.Err()}
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, TransientError{Err: err}
			}
		}

		body, err := c.getOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, TransientError{Err: fmt.Errorf("after %d retries: %w", c.retries, lastErr)}
}

func (c *client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, TransientError{Err: err}
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(c.host, err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, NotFoundError{Key: rawURL}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Classify(c.host, nil, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransientError{Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
