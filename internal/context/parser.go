// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"regexp"
	"strings"
)

// =============================================================================
// REFERENCE TYPES
// =============================================================================

// ReferenceType distinguishes file references from URL references.
type ReferenceType int

const (
	ReferenceFile ReferenceType = iota // [path] or [path:range]
	ReferenceURL                       // [https://...] or [example.com/page]
)

// String returns the string representation of the reference type.
func (t ReferenceType) String() string {
	switch t {
	case ReferenceFile:
		return "file"
	case ReferenceURL:
		return "url"
	default:
		return "unknown"
	}
}

// Reference is one bracketed item from user input.
type Reference struct {
	Type ReferenceType

	// Raw is the text between the brackets.
	Raw string

	// Path and Spec are set for file references. Spec is the unparsed
	// range ("10-20"), empty for the whole file.
	Path string
	Spec string

	// URL is set for URL references.
	URL string
}

// Label returns a header for the reference in a context block.
func (r Reference) Label() string {
	if r.Type == ReferenceURL {
		return r.URL
	}
	if r.Spec == "" {
		return r.Path
	}
	rng, err := ParseRange(r.Spec)
	if err != nil {
		return r.Path + ":" + r.Spec
	}
	switch {
	case rng.Start == rng.End:
		return r.Path + " (line " + rng.String() + ")"
	default:
		return r.Path + " (lines " + rng.String() + ")"
	}
}

// =============================================================================
// PARSER
// =============================================================================

// bracketPattern matches [...] allowing two levels of nested brackets, so
// "[data[0]].py" style names survive.
var bracketPattern = regexp.MustCompile(`\[((?:[^\[\]]|\[(?:[^\[\]]|\[[^\[\]]*\])*\])*)\]`)

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.[a-zA-Z]{2,}`)

// ParseReferences extracts every bracketed reference from input. It returns
// the references in order of appearance and the input with the bracketed
// text removed and surrounding whitespace trimmed.
func ParseReferences(input string) ([]Reference, string) {
	var refs []Reference
	for _, m := range bracketPattern.FindAllStringSubmatch(input, -1) {
		raw := m[1]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		refs = append(refs, classify(raw))
	}
	clean := strings.TrimSpace(bracketPattern.ReplaceAllString(input, ""))
	return refs, clean
}

// Files returns only the file references.
func Files(refs []Reference) []Reference {
	var out []Reference
	for _, r := range refs {
		if r.Type == ReferenceFile {
			out = append(out, r)
		}
	}
	return out
}

// URLs returns the URLs of the URL references.
func URLs(refs []Reference) []string {
	var out []string
	for _, r := range refs {
		if r.Type == ReferenceURL {
			out = append(out, r.URL)
		}
	}
	return out
}

func classify(raw string) Reference {
	if isURL(raw) {
		return Reference{Type: ReferenceURL, Raw: raw, URL: raw}
	}
	path, spec := SplitRef(raw)
	return Reference{Type: ReferenceFile, Raw: raw, Path: path, Spec: spec}
}

// isURL accepts explicit http(s) URLs and bare "domain.tld/path" forms.
// Relative paths and anything with a colon (a line range) are files.
func isURL(s string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return true
	}
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return false
	}
	return strings.Contains(s, ".") &&
		strings.Contains(s, "/") &&
		!strings.Contains(s, ":") &&
		domainPattern.MatchString(s)
}
