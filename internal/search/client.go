// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	DefaultSearchURL        = "https://html.duckduckgo.com/html/"
	DefaultMaxResults       = 5
	DefaultMaxContentLength = 10000
	DefaultTimeout          = 10 * time.Second
	DefaultRequestsPerSec   = 1.0
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// TruncationSuffix marks fetched content that was cut.
	TruncationSuffix = "... [content truncated]"

	maxResponseSize = 5 * 1024 * 1024
	maxRedirects    = 5
	fetchParallel   = 3
)

// Config holds the web backend settings.
type Config struct {
	// SearchURL is the DuckDuckGo HTML endpoint
	SearchURL string

	// MaxResults caps the number of results returned by Search
	MaxResults int

	// MaxContentLength caps fetched text, in characters
	MaxContentLength int

	// Timeout bounds each request
	Timeout time.Duration

	// RequestsPerSecond limits outbound requests; bursts of 2 are allowed
	RequestsPerSecond float64

	UserAgent string
	Logger    *slog.Logger
}

// DefaultConfig returns the default web backend configuration.
func DefaultConfig() Config {
	return Config{
		SearchURL:         DefaultSearchURL,
		MaxResults:        DefaultMaxResults,
		MaxContentLength:  DefaultMaxContentLength,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSec,
		UserAgent:         DefaultUserAgent,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client performs searches and fetches. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a client, filling zero config fields with defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.SearchURL == "" {
		cfg.SearchURL = def.SearchURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = def.MaxContentLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 2),
		log:     log.With("component", "search"),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// get waits for the limiter and performs a GET. The caller closes the body.
func (c *Client) get(ctx context.Context, op, rawURL, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: op, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Op: op, URL: rawURL, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	// Go's transport negotiates gzip itself; setting Accept-Encoding disables that.
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "op", op, "url", rawURL, "error", err)
		return nil, &Error{Op: op, URL: rawURL, Err: err}
	}
	c.log.Debug("request done", "op", op, "url", rawURL, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &Error{Op: op, URL: rawURL, Status: resp.StatusCode}
	}
	return resp, nil
}

// readLimited reads at most maxResponseSize bytes.
func readLimited(op, rawURL string, r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseSize+1))
	if err != nil {
		return nil, &Error{Op: op, URL: rawURL, Err: err}
	}
	if len(body) > maxResponseSize {
		return nil, &Error{Op: op, URL: rawURL, Err: ErrResponseTooLarge}
	}
	return body, nil
}
