// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"

	// DefaultThinkingMaxLength caps the characters shown per thinking block.
	DefaultThinkingMaxLength = 5000
)

// SanitizeThinking drops a trailing thinking block that was never closed,
// so a cut-off reply does not leak half a chain of thought.
func SanitizeThinking(text string) string {
	open := strings.LastIndex(text, thinkOpen)
	if open < 0 {
		return text
	}
	if strings.LastIndex(text, thinkClose) > open {
		return text
	}
	return text[:open]
}

// ProcessThinking prepares a reply for display. With show false every
// thinking block is removed. With show true, blocks longer than maxLen
// runes are cut and rewritten as <thinking> blocks with a note of how much
// was elided; shorter blocks are left as they are.
func ProcessThinking(text string, show bool, maxLen int) string {
	text = SanitizeThinking(text)
	if !strings.Contains(text, thinkOpen) {
		return text
	}
	if maxLen <= 0 {
		maxLen = DefaultThinkingMaxLength
	}

	var b strings.Builder
	b.Grow(len(text))
	rest := text
	for {
		open := strings.Index(rest, thinkOpen)
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open:], thinkClose)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += open

		b.WriteString(rest[:open])
		body := rest[open+len(thinkOpen) : end]
		if show {
			b.WriteString(renderThinking(body, maxLen))
		}
		rest = rest[end+len(thinkClose):]
	}

	if show {
		return b.String()
	}
	return strings.TrimLeft(b.String(), "\n")
}

func renderThinking(body string, maxLen int) string {
	runes := []rune(body)
	if len(runes) <= maxLen {
		return thinkOpen + body + thinkClose
	}
	return fmt.Sprintf("<thinking>\n%s\n... [Thinking truncated, %d more characters] ...\n</thinking>",
		string(runes[:maxLen]), len(runes)-maxLen)
}
