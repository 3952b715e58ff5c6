// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
)

// strictPolicy strips every tag; it is safe for concurrent use.
var strictPolicy = bluemonday.StrictPolicy()

// =============================================================================
// FETCH
// =============================================================================

// Fetch retrieves rawURL and returns its readable text, cut to
// MaxContentLength characters. A URL without a scheme gets https://.
// HTML is reduced to the main article text; other text types are
// returned as they are.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return "", &Error{Op: "fetch", URL: rawURL, Err: err}
	}
	target := u.String()

	resp, err := c.get(ctx, "fetch", target, "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readLimited("fetch", target, resp.Body)
	if err != nil {
		return "", err
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	text := string(body)
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml") {
		text = readableText(body, resp.Request.URL)
	}

	c.log.Info("fetched", "url", target, "content_type", contentType, "bytes", len(body))
	return Truncate(text, c.cfg.MaxContentLength), nil
}

// NormalizeURL parses rawURL, adding https:// when the scheme is missing.
func NormalizeURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrInvalidURL
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrInvalidScheme
	}
	if u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// readableText extracts the main article with readability, then strips
// whatever markup is left. Pages readability cannot parse fall back to
// stripping the whole document.
func readableText(page []byte, base *url.URL) string {
	var title, text string
	article, err := readability.FromReader(bytes.NewReader(page), base)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		text = article.TextContent
	}
	if strings.TrimSpace(text) == "" {
		text = strictPolicy.Sanitize(string(page))
	} else {
		text = strictPolicy.Sanitize(text)
	}

	text = cleanLines(html.UnescapeString(text))
	if title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return text
}

// cleanLines trims every line and drops the blank ones.
func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Truncate cuts s to max characters and appends TruncationSuffix when
// anything was removed.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationSuffix
}

// =============================================================================
// SEARCH AND FETCH
// =============================================================================

// Page is a search hit with its fetched content. Err is set when the
// fetch failed; the other pages are still returned.
type Page struct {
	Result
	Content string
	Err     error
}

// SearchAndFetch searches and then fetches the top n hits, at most three at
// a time. Only a failed search or a cancelled context is an error.
func (c *Client) SearchAndFetch(ctx context.Context, query string, n int) ([]Page, error) {
	results, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(results) > n {
		results = results[:n]
	}

	pages := make([]Page, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallel)
	for i, r := range results {
		i, r := i, r
		pages[i].Result = r
		g.Go(func() error {
			content, err := c.Fetch(gctx, r.URL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				pages[i].Err = err
				return nil
			}
			pages[i].Content = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
