// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		clean string
		refs  []Reference
	}{
		{
			name:  "plain file",
			input: "Show me the code in [file.py]",
			clean: "Show me the code in",
			refs:  []Reference{{Type: ReferenceFile, Raw: "file.py", Path: "file.py"}},
		},
		{
			name:  "range",
			input: "Show me lines 10-20 in [file.py:10-20]",
			clean: "Show me lines 10-20 in",
			refs:  []Reference{{Type: ReferenceFile, Raw: "file.py:10-20", Path: "file.py", Spec: "10-20"}},
		},
		{
			name:  "open end",
			input: "Show me from line 5 onwards in [file.py:5-]",
			clean: "Show me from line 5 onwards in",
			refs:  []Reference{{Type: ReferenceFile, Raw: "file.py:5-", Path: "file.py", Spec: "5-"}},
		},
		{
			name:  "two files",
			input: "Compare [file1.py:1-10] with [file2.py:5-15]",
			clean: "Compare  with",
			refs: []Reference{
				{Type: ReferenceFile, Raw: "file1.py:1-10", Path: "file1.py", Spec: "1-10"},
				{Type: ReferenceFile, Raw: "file2.py:5-15", Path: "file2.py", Spec: "5-15"},
			},
		},
		{
			name:  "url",
			input: "Check this [https://example.com]",
			clean: "Check this",
			refs:  []Reference{{Type: ReferenceURL, Raw: "https://example.com", URL: "https://example.com"}},
		},
		{
			name:  "bare domain",
			input: "Read [docs.python.org/3/library]",
			clean: "Read",
			refs:  []Reference{{Type: ReferenceURL, Raw: "docs.python.org/3/library", URL: "docs.python.org/3/library"}},
		},
		{
			name:  "relative path is a file",
			input: "Open [./pkg/main.go]",
			clean: "Open",
			refs:  []Reference{{Type: ReferenceFile, Raw: "./pkg/main.go", Path: "./pkg/main.go"}},
		},
		{
			name:  "empty brackets ignored",
			input: "Nothing [] here",
			clean: "Nothing  here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, clean := ParseReferences(tt.input)
			assert.Equal(t, tt.clean, clean)
			assert.Equal(t, tt.refs, refs)
		})
	}
}

func TestReferenceLabel(t *testing.T) {
	assert.Equal(t, "a.go", Reference{Path: "a.go"}.Label())
	assert.Equal(t, "a.go (line 7)", Reference{Path: "a.go", Spec: "7"}.Label())
	assert.Equal(t, "a.go (lines 2-9)", Reference{Path: "a.go", Spec: "2-9"}.Label())
	assert.Equal(t, "https://x.dev", Reference{Type: ReferenceURL, URL: "https://x.dev"}.Label())
}

type stubFetcher map[string]string

func (s stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	if body, ok := s[url]; ok {
		return body, nil
	}
	return "", errors.New("404")
}

func TestExpander_Expand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	e := NewExpander(Resolver{WorkingDir: dir}, stubFetcher{"https://ok.dev": "page text"}, nil)
	x := e.Expand(context.Background(), "explain [main.go:3] and [missing.go] see [https://ok.dev] [https://bad.dev]")

	assert.Equal(t, "explain  and  see", x.Query)
	require.Len(t, x.Files, 1)
	assert.Equal(t, "func main() {}\n", x.Files[0].Content)
	require.Len(t, x.Pages, 1)
	assert.Len(t, x.Warnings, 2)

	prompt := x.Prompt()
	assert.True(t, strings.HasPrefix(prompt, "Files for context:\n\n--- main.go (line 3) ---\nfunc main() {}\n"))
	assert.Contains(t, prompt, "--- https://ok.dev ---\npage text")
	assert.True(t, strings.HasSuffix(prompt, "explain  and  see"))
}

func TestExpander_NoFetcher(t *testing.T) {
	e := NewExpander(Resolver{}, nil, nil)
	x := e.Expand(context.Background(), "look at [https://example.com]")

	assert.False(t, x.HasContext())
	assert.Equal(t, "look at", x.Prompt())
	require.Len(t, x.Warnings, 1)
}
