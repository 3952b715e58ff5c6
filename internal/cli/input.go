// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// input.go - REPL input classification and command extraction.

package cli

import (
	"regexp"
	"strings"

	"github.com/Legorobotdude/PrivateCode/internal/ollama"
)

// =============================================================================
// INPUT KINDS
// =============================================================================

// InputKind says how a REPL line is handled.
type InputKind int

const (
	InputChat InputKind = iota
	InputSearch
	InputEdit
	InputRun
	InputCreate
	InputPlan
	InputModel
	InputModels
	InputThinking
	InputThinkingLength
	InputTimeout
	InputCwd
	InputHistory
	InputClear
	InputHelp
	InputExit
)

var exactInputs = map[string]InputKind{
	"models":     InputModels,
	"model":      InputModels,
	"model list": InputModels,
	"thinking":   InputThinking,
	"history":    InputHistory,
	"clear":      InputClear,
	"help":       InputHelp,
	"?":          InputHelp,
	"exit":       InputExit,
	"quit":       InputExit,
	"bye":        InputExit,
	":q":         InputExit,
}

// Longer prefixes come first so "thinking length" wins over "thinking ".
var prefixInputs = []struct {
	prefix string
	kind   InputKind
}{
	{"search:", InputSearch},
	{"search ", InputSearch},
	{"edit:", InputEdit},
	{"edit ", InputEdit},
	{"run:", InputRun},
	{"run ", InputRun},
	{"create:", InputCreate},
	{"create ", InputCreate},
	{"vibecode:", InputPlan},
	{"vibecode ", InputPlan},
	{"plan:", InputPlan},
	{"plan ", InputPlan},
	{"use model:", InputModel},
	{"use model ", InputModel},
	{"model:", InputModel},
	{"model ", InputModel},
	{"thinking length", InputThinkingLength},
	{"thinking:length", InputThinkingLength},
	{"thinking:", InputThinking},
	{"thinking ", InputThinking},
	{"timeout:", InputTimeout},
	{"timeout ", InputTimeout},
	{"cwd:", InputCwd},
	{"cwd ", InputCwd},
}

// ParseInput classifies a REPL line and returns the text after its prefix.
// Prefixes match case-insensitively; anything else is a chat turn.
func ParseInput(line string) (InputKind, string) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	if kind, ok := exactInputs[lower]; ok {
		return kind, ""
	}
	for _, p := range prefixInputs {
		if len(trimmed) >= len(p.prefix) && strings.EqualFold(trimmed[:len(p.prefix)], p.prefix) {
			return p.kind, strings.TrimSpace(trimmed[len(p.prefix):])
		}
	}
	return InputChat, trimmed
}

// =============================================================================
// COMMAND EXTRACTION
// =============================================================================

var (
	codeBlockPattern = regexp.MustCompile("(?s)```(?:bash|shell|cmd|powershell|sh)?\\s*(.*?)```")
	quotedCommand    = regexp.MustCompile("['\"`]((?:python|python3|node|npm|git|ls|dir|cd|grep|find|cat|type|pip|yarn|dotnet|java|javac|gcc|g\\+\\+|make|cmake|mvn|gradle|cargo|rustc|go|ruby|perl|php|bash|sh|pwsh|powershell|cmd|echo|test|pytest|jest|mocha).*?)['\"`]")
)

var commandLeaders = []string{"python ", "python3 ", "node ", "npm ", "git ", "ls ", "dir ", "cd ", "go "}

var commandLabels = []string{"Command: ", "Suggested command: ", "Run: ", "Execute: ", "Try: ", "Use: "}

// extractSuggestedCommand pulls the command out of a reply to a "run:"
// request. In order it tries the first line of the first code block, a line
// that starts like a command, a labelled line, a quoted command, and
// finally the first non-empty line.
func extractSuggestedCommand(reply string) string {
	text := ollama.ProcessThinking(reply, false, 0)
	if strings.TrimSpace(text) == "" {
		return ""
	}

	if m := codeBlockPattern.FindStringSubmatch(text); m != nil {
		first, _, _ := strings.Cut(strings.TrimSpace(m[1]), "\n")
		return strings.TrimSpace(first)
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, lead := range commandLeaders {
			if strings.HasPrefix(line, lead) {
				return line
			}
		}
		for _, label := range commandLabels {
			if strings.HasPrefix(line, label) {
				return strings.TrimSpace(line[len(label):])
			}
		}
	}

	if m := quotedCommand.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// literalCommand returns the command when a run: argument is written as
// 'command' and needs no model.
func literalCommand(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if len(arg) >= 2 && strings.HasPrefix(arg, "'") && strings.HasSuffix(arg, "'") {
		if cmd := strings.TrimSpace(arg[1 : len(arg)-1]); cmd != "" {
			return cmd, true
		}
	}
	return "", false
}
