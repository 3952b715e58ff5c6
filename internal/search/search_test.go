// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgPage = `<html><body>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Programming Language</a>
  </h2>
  <a class="result__snippet" href="x">Documentation &amp; tutorials for <b>Go</b>.</a>
</div>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  </h2>
  <a class="result__snippet" href="y">Search   packages</a>
</div>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="/relative">Skipped</a>
  </h2>
  <a class="result__snippet" href="z">no absolute url</a>
</div>
</body></html>`

const articlePage = `<!DOCTYPE html>
<html><head><title>Context deadlines</title><script>var tracking = 1;</script></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Context deadlines</h1>
<p>A context carries a deadline, a cancellation signal, and request-scoped values across API boundaries.</p>
<p>Functions that block should accept a context as their first parameter and return when it is done.</p>
<p>This paragraph exists so that the article is long enough for the readability scorer to pick it up as main content.</p>
</article>
</body></html>`

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Config{
		SearchURL:         srv.URL + "/html/",
		RequestsPerSecond: 1000,
		MaxContentLength:  DefaultMaxContentLength,
	})
	return c, srv.URL
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearch_ParsesResults(t *testing.T) {
	mux := http.NewServeMux()
	var gotQuery, gotUA string
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.UserAgent()
		io.WriteString(w, ddgPage)
	})
	c, _ := newTestClient(t, mux)

	results, err := c.Search(context.Background(), "golang context")
	require.NoError(t, err)
	assert.Equal(t, "golang context", gotQuery)
	assert.Equal(t, DefaultUserAgent, gotUA)

	require.Len(t, results, 2)
	assert.Equal(t, Result{
		Title:   "The Go Programming Language",
		URL:     "https://go.dev/doc/",
		Snippet: "Documentation & tutorials for Go.",
	}, results[0])
	assert.Equal(t, "https://pkg.go.dev/", results[1].URL)
	assert.Equal(t, "Search packages", results[1].Snippet)
}

func TestSearch_RespectsMaxResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ddgPage)
	})
	c, _ := newTestClient(t, mux)
	c.cfg.MaxResults = 1

	results, err := c.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Search(context.Background(), "go")
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusTooManyRequests, serr.Status)
	assert.Contains(t, err.Error(), "rate-limiting")

	_, err = c.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults("go", []Result{{Title: "Go", URL: "https://go.dev", Snippet: "fast"}})
	assert.Equal(t, "Web Search Query: go\n\nSearch Results:\n1. Go\n   URL: https://go.dev\n   Snippet: fast\n\n", out)

	assert.Equal(t, "Web Search Query: nothing\n", FormatResults("nothing", nil))
}

// =============================================================================
// FETCH
// =============================================================================

func TestFetch_HTMLIsReadable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage)
	})
	c, base := newTestClient(t, mux)

	text, err := c.Fetch(context.Background(), base+"/article")
	require.NoError(t, err)
	assert.Contains(t, text, "A context carries a deadline")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "tracking")
}

func TestFetch_PlainTextIsRaw(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/raw.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "line one\n\n  <b>kept</b>\n")
	})
	c, base := newTestClient(t, mux)

	text, err := c.Fetch(context.Background(), base+"/raw.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\n\n  <b>kept</b>\n", text)
}

func TestFetch_Truncates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("é", 50))
	})
	c, base := newTestClient(t, mux)
	c.cfg.MaxContentLength = 10

	text, err := c.Fetch(context.Background(), base+"/big")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10)+TruncationSuffix, text)
}

func TestFetch_StatusError(t *testing.T) {
	mux := http.NewServeMux()
	c, base := newTestClient(t, mux)

	_, err := c.Fetch(context.Background(), base+"/missing")
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "fetch", serr.Op)
	assert.Equal(t, http.StatusNotFound, serr.Status)
	assert.Contains(t, err.Error(), "not found (404)")
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "example.com/docs", want: "https://example.com/docs"},
		{in: "http://example.com", want: "http://example.com"},
		{in: " https://example.com/a?b=c ", want: "https://example.com/a?b=c"},
		{in: "ftp://example.com", wantErr: ErrInvalidScheme},
		{in: "", wantErr: ErrInvalidURL},
		{in: "https://", wantErr: ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := NormalizeURL(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ab"+TruncationSuffix, Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

// =============================================================================
// SEARCH AND FETCH
// =============================================================================

func TestSearchAndFetch(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=%s">Good</a>
<a class="result__snippet" href="">one</a>
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=%s">Bad</a>
<a class="result__snippet" href="">two</a>`,
		url.QueryEscape(srv.URL+"/good"), url.QueryEscape(srv.URL+"/bad"))

	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "good content")
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := New(Config{SearchURL: srv.URL + "/html/", RequestsPerSecond: 1000})
	pages, err := c.SearchAndFetch(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "Good", pages[0].Title)
	assert.Equal(t, "good content", pages[0].Content)
	assert.NoError(t, pages[0].Err)

	assert.Equal(t, "Bad", pages[1].Title)
	assert.Empty(t, pages[1].Content)
	assert.Error(t, pages[1].Err)
}

func TestSearchAndFetch_Cancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ddgPage)
	})
	c, _ := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SearchAndFetch(ctx, "go", 2)
	assert.ErrorIs(t, err, context.Canceled)
}
