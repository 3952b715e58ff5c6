// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package safety

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnclosedQuote is returned by Tokenize for unbalanced quoting.
var ErrUnclosedQuote = errors.New("unclosed quote in command")

// ErrUnclosedSubstitution is returned for a $( , backtick or ( without its
// closing counterpart.
var ErrUnclosedSubstitution = errors.New("unclosed substitution or subshell in command")

// nestedPlaceholder stands in for a lifted $(...) or `...` so the outer
// command keeps its word structure.
const nestedPlaceholder = "_"

// segment is one simple command of a pipeline or command list.
type segment struct {
	text         string
	tokens       []string
	redirect     bool // unquoted > or >>
	substitution bool // $( , backtick or subshell outside single quotes

	// nested holds the text of every $(...), `...` and (...) lifted out of
	// the segment. Each is classified as a command line of its own.
	nested []string
}

// Tokenize splits a simple command into words. Single and double quotes
// group words and are removed; a backslash escapes the next character.
func Tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inSingle, inDouble, escaped, started := false, false, false, false

	for _, r := range command {
		if escaped {
			cur.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && !inSingle:
			escaped = true
			started = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			started = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			started = true
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inSingle && !inDouble:
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inSingle || inDouble {
		return nil, ErrUnclosedQuote
	}
	if started {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// splitSegments breaks a command line at unquoted ;, &, |, && , || and
// newlines, and tokenizes each piece. Command substitutions, backticks and
// subshells are lifted into segment.nested rather than tokenized in place.
func splitSegments(command string) ([]segment, error) {
	var segs []segment
	var cur strings.Builder
	var seg segment
	inSingle, inDouble, escaped := false, false, false

	flush := func() error {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			if len(seg.nested) > 0 {
				segs = append(segs, seg)
			}
			seg = segment{}
			return nil
		}
		toks, err := Tokenize(text)
		if err != nil {
			return err
		}
		seg.text = text
		seg.tokens = toks
		segs = append(segs, seg)
		seg = segment{}
		return nil
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if escaped {
			cur.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && !inSingle:
			escaped = true
			cur.WriteRune(r)
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteRune(r)
		case r == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteRune(r)
		case inSingle:
			cur.WriteRune(r)
		case r == '`' || (r == '$' && i+1 < len(runes) && runes[i+1] == '('):
			inner, end, ok := readNested(runes, i)
			if !ok {
				return nil, ErrUnclosedSubstitution
			}
			seg.substitution = true
			seg.nested = append(seg.nested, inner)
			cur.WriteString(nestedPlaceholder)
			i = end
		case inDouble:
			cur.WriteRune(r)
		case r == '(':
			inner, end, ok := readNested(runes, i)
			if !ok {
				return nil, ErrUnclosedSubstitution
			}
			seg.substitution = true
			seg.nested = append(seg.nested, inner)
			i = end
		case r == '>':
			seg.redirect = true
			cur.WriteRune(r)
		case r == ';' || r == '|' || r == '&' || r == '\n':
			// "2>&1" and "&>" are redirections, not separators.
			if r == '&' && ((i > 0 && runes[i-1] == '>') || (i+1 < len(runes) && runes[i+1] == '>')) {
				cur.WriteRune(r)
				continue
			}
			if err := flush(); err != nil {
				return nil, err
			}
			if i+1 < len(runes) && (runes[i+1] == r) {
				i++
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inSingle || inDouble {
		return nil, ErrUnclosedQuote
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segs, nil
}

// readNested returns the text enclosed by the `...`, $(...) or (...) that
// opens at runes[i], and the index of its closing rune. Quotes and escapes
// inside are honored; parentheses nest.
func readNested(runes []rune, i int) (inner string, end int, ok bool) {
	if runes[i] == '`' {
		escaped := false
		for j := i + 1; j < len(runes); j++ {
			switch {
			case escaped:
				escaped = false
			case runes[j] == '\\':
				escaped = true
			case runes[j] == '`':
				return string(runes[i+1 : j]), j, true
			}
		}
		return "", 0, false
	}

	start := i + 1
	if runes[i] == '$' {
		start = i + 2
	}
	depth := 1
	inSingle, inDouble, escaped := false, false, false
	for j := start; j < len(runes); j++ {
		r := runes[j]
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 {
				return string(runes[start:j]), j, true
			}
		}
	}
	return "", 0, false
}

// programName reduces a command token to a comparable program name:
// basename, lowercased, without a Windows executable suffix. Substitution
// and subshell punctuation left on a raw word ("$(rm", "`rm", "(rm") is
// dropped first.
func programName(token string) string {
	token = strings.TrimLeft(token, "$(`{")
	token = strings.TrimRight(token, ")`};")
	name := strings.ToLower(filepath.Base(strings.ReplaceAll(token, `\`, "/")))
	for _, ext := range []string{".exe", ".cmd", ".bat", ".com"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
