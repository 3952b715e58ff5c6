// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// URLFetcher retrieves readable text for a URL.
type URLFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// =============================================================================
// EXPANDER
// =============================================================================

// Expander resolves the references in a query into a context block.
type Expander struct {
	resolver Resolver
	fetcher  URLFetcher
	logger   *slog.Logger
}

// NewExpander creates an expander. fetcher may be nil, in which case URL
// references are reported as warnings.
func NewExpander(resolver Resolver, fetcher URLFetcher, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{resolver: resolver, fetcher: fetcher, logger: logger}
}

// Resolver returns the line-range resolver used for file references.
func (e *Expander) Resolver() Resolver {
	return e.resolver
}

// Expansion is the outcome of expanding one query.
type Expansion struct {
	// Query is the input with references removed.
	Query string

	// References in order of appearance.
	References []Reference

	// Files maps each successfully read file reference label to its text.
	Files []Section

	// Pages holds fetched URL content.
	Pages []Section

	// Warnings describes references that could not be resolved.
	Warnings []string
}

// Section is one resolved reference.
type Section struct {
	Ref     Reference
	Content string
}

// Expand parses and resolves every reference in input. Failures to read a
// reference are collected as warnings; Expand itself does not fail.
func (e *Expander) Expand(ctx context.Context, input string) *Expansion {
	refs, clean := ParseReferences(input)
	x := &Expansion{Query: clean, References: refs}

	for _, ref := range refs {
		switch ref.Type {
		case ReferenceFile:
			content, err := e.resolver.Resolve(ref.Path, ref.Spec)
			if err != nil {
				x.Warnings = append(x.Warnings, fmt.Sprintf("could not read %s: %v", ref.Raw, err))
				e.logger.Warn("reference unresolved", "ref", ref.Raw, "error", err)
				continue
			}
			x.Files = append(x.Files, Section{Ref: ref, Content: content})

		case ReferenceURL:
			if e.fetcher == nil {
				x.Warnings = append(x.Warnings, fmt.Sprintf("cannot fetch %s: web access disabled", ref.URL))
				continue
			}
			content, err := e.fetcher.Fetch(ctx, ref.URL)
			if err != nil {
				x.Warnings = append(x.Warnings, fmt.Sprintf("could not fetch %s: %v", ref.URL, err))
				e.logger.Warn("url fetch failed", "url", ref.URL, "error", err)
				continue
			}
			x.Pages = append(x.Pages, Section{Ref: ref, Content: content})
		}
	}
	return x
}

// HasContext reports whether any reference resolved.
func (x *Expansion) HasContext() bool {
	return len(x.Files) > 0 || len(x.Pages) > 0
}

// ContextBlock formats the resolved references for inclusion in a prompt.
func (x *Expansion) ContextBlock() string {
	var sb strings.Builder
	if len(x.Files) > 0 {
		sb.WriteString("Files for context:\n\n")
		for _, s := range x.Files {
			fmt.Fprintf(&sb, "--- %s ---\n%s", s.Ref.Label(), s.Content)
			if !strings.HasSuffix(s.Content, "\n") {
				sb.WriteByte('\n')
			}
			sb.WriteByte('\n')
		}
	}
	if len(x.Pages) > 0 {
		sb.WriteString("Content from URLs:\n\n")
		for _, s := range x.Pages {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", s.Ref.URL, strings.TrimRight(s.Content, "\n"))
		}
	}
	return sb.String()
}

// Prompt returns the context block followed by the cleaned query.
func (x *Expansion) Prompt() string {
	if !x.HasContext() {
		return x.Query
	}
	return x.ContextBlock() + x.Query
}
