// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	// DuckDuckGo HTML result markup
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// =============================================================================
// SEARCH
// =============================================================================

// Search queries DuckDuckGo and returns up to MaxResults hits. No hits is
// not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Op: "search", Err: ErrEmptyQuery}
	}

	searchURL := c.cfg.SearchURL + "?q=" + url.QueryEscape(query)
	resp, err := c.get(ctx, "search", searchURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readLimited("search", searchURL, resp.Body)
	if err != nil {
		return nil, err
	}

	results := parseResults(string(body), c.cfg.MaxResults)
	c.log.Info("search complete", "query", query, "results", len(results))
	return results, nil
}

// parseResults extracts hits from DuckDuckGo's HTML page.
//
//	<div class="result results_links web-result">
//	  <h2 class="result__title">
//	    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=URL">Title</a>
//	  </h2>
//	  <a class="result__snippet" href="...">Snippet text</a>
//	</div>
func parseResults(page string, limit int) []Result {
	titles := ddgTitleRegex.FindAllStringSubmatch(page, 30)
	snippets := ddgSnippetRegex.FindAllStringSubmatch(page, 30)

	var results []Result
	for i, m := range titles {
		target := actualURL(html.UnescapeString(m[1]))
		title := cleanHTML(m[2])
		if target == "" || title == "" {
			continue
		}

		snippet := ""
		if i < len(snippets) {
			snippet = cleanHTML(snippets[i][1])
		}

		results = append(results, Result{Title: title, URL: target, Snippet: snippet})
		if len(results) >= limit {
			break
		}
	}
	return results
}

// actualURL unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=ENCODED redirect.
func actualURL(href string) string {
	if strings.Contains(href, "uddg=") {
		if strings.HasPrefix(href, "//") {
			href = "https:" + href
		}
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return ""
}

func cleanHTML(s string) string {
	s = tagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// FormatResults renders hits as prompt context for the model.
func FormatResults(query string, results []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Web Search Query: %s\n", query)
	if len(results) == 0 {
		return b.String()
	}

	b.WriteString("\nSearch Results:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "   URL: %s\n", r.URL)
		if r.Snippet != "" {
			// UNICODE: Rune-aware truncation preserves multi-byte characters
			fmt.Fprintf(&b, "   Snippet: %s\n", util.TruncateRunes(r.Snippet, 300))
		}
		b.WriteString("\n")
	}
	return b.String()
}
