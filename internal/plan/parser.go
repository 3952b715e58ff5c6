// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// maxResponseSize bounds the text Parse will scan.
	maxResponseSize = 1024 * 1024

	// maxCandidates bounds how many bracketed spans are tried.
	maxCandidates = 256
)

// ErrMalformedPlan is matched by every error Parse returns.
var ErrMalformedPlan = errors.New("malformed plan")

// MalformedPlanError says which step broke which rule. Index is -1 for
// problems with the payload as a whole.
type MalformedPlanError struct {
	Index int
	Rule  string
	Err   error
}

func (e *MalformedPlanError) Error() string {
	var sb strings.Builder
	sb.WriteString("malformed plan: ")
	if e.Index >= 0 {
		fmt.Fprintf(&sb, "step %d: ", e.Index)
	}
	sb.WriteString(e.Rule)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *MalformedPlanError) Unwrap() error {
	return e.Err
}

func (e *MalformedPlanError) Is(target error) bool {
	return target == ErrMalformedPlan
}

func malformed(index int, format string, args ...any) *MalformedPlanError {
	return &MalformedPlanError{Index: index, Rule: fmt.Sprintf(format, args...)}
}

// =============================================================================
// PARSE
// =============================================================================

// Parse extracts a plan from free-form model output. It strips thinking
// blocks, finds the first JSON payload shaped like a plan and validates
// every step. Either every step is valid or an error is returned.
//
// The returned plan is a draft without an id; see Plan.Stamp.
func Parse(raw string) (*Plan, error) {
	steps, err := ParseSteps(raw)
	if err != nil {
		return nil, err
	}
	return &Plan{Status: StatusDraft, Steps: steps}, nil
}

// ParseSteps is Parse without the Plan wrapper.
func ParseSteps(raw string) ([]Step, error) {
	if len(raw) > maxResponseSize {
		return nil, malformed(-1, "response too large: %d bytes (max: %d)", len(raw), maxResponseSize)
	}

	text := StripThinking(raw)
	elems, err := findPayload(text)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, malformed(-1, "plan has no steps")
	}

	steps := make([]Step, 0, len(elems))
	for i, elem := range elems {
		step, err := decodeStep(i, elem)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// StripThinking removes <think>...</think> blocks. An unclosed <think>
// truncates the text there; a closing tag with no opener drops everything
// before it, which is how some reasoning models emit their preamble.
func StripThinking(s string) string {
	const open, closeTag = "<think>", "</think>"

	if i, j := strings.Index(s, closeTag), strings.Index(s, open); i >= 0 && (j < 0 || i < j) {
		s = s[i+len(closeTag):]
	}

	var sb strings.Builder
	for {
		start := strings.Index(s, open)
		if start < 0 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:start])
		rest := s[start+len(open):]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		s = rest[end+len(closeTag):]
	}
	return strings.ReplaceAll(sb.String(), closeTag, "")
}

// =============================================================================
// PAYLOAD EXTRACTION
// =============================================================================

// findPayload returns the step elements of the first candidate that decodes
// and looks like a plan. Candidates are tried in order of their opening
// bracket; prose such as "[1]" or "[see docs]" is passed over. A bracketed
// array that fails is skipped whole, so an object inside a broken step
// array is never taken for a one-step plan.
func findPayload(text string) ([]json.RawMessage, error) {
	var arrayErr *MalformedPlanError
	tried := 0
	for start := 0; start < len(text) && tried < maxCandidates; start++ {
		c := text[start]
		if c != '[' && c != '{' {
			continue
		}
		tried++
		end, ok := matchBracket(text, start)
		if !ok {
			continue
		}
		candidate := []byte(text[start : end+1])
		if elems, ok := planShape(candidate); ok {
			return elems, nil
		}
		if c == '[' {
			if arrayErr == nil {
				arrayErr = arrayProblem(candidate)
			}
			start = end
		}
	}
	if arrayErr != nil {
		return nil, arrayErr
	}
	return nil, malformed(-1, "no JSON plan found in response")
}

// arrayProblem explains why a bracketed array holding objects is not a
// step array. Arrays without any object are prose and yield nil.
func arrayProblem(candidate []byte) *MalformedPlanError {
	if !bytes.ContainsRune(candidate, '{') {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(candidate, &elems); err != nil {
		return &MalformedPlanError{Index: -1, Rule: "step array is not valid JSON", Err: err}
	}
	for i, e := range elems {
		if !isObject(e) {
			return malformed(i, "step is not a JSON object")
		}
	}
	return nil
}

// matchBracket returns the index of the bracket closing text[start]. It
// skips over JSON strings and fails on mismatched nesting.
func matchBracket(text string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// planShape decodes candidate and reports whether it is a step array, an
// object with a "steps" array, or a single step object.
func planShape(candidate []byte) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(candidate)
	if len(trimmed) == 0 {
		return nil, false
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, false
		}
		for _, e := range elems {
			if !isObject(e) {
				return nil, false
			}
		}
		return elems, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	if steps, ok := obj["steps"]; ok {
		var elems []json.RawMessage
		if err := json.Unmarshal(steps, &elems); err != nil {
			return nil, false
		}
		return elems, true
	}
	if _, ok := obj["kind"]; ok {
		return []json.RawMessage{trimmed}, true
	}
	if _, ok := obj["type"]; ok {
		return []json.RawMessage{trimmed}, true
	}
	return nil, false
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

// =============================================================================
// STEP DECODING
// =============================================================================

// fieldAliases maps older field names onto the canonical ones. An alias
// never overrides a canonical field present in the same element.
var fieldAliases = []struct{ alias, canonical string }{
	{"type", "kind"},
	{"file_path", "target"},
	{"path", "target"},
	{"command", "target"},
	{"code", "content"},
	{"new_content", "content"},
	{"expected_output", "content"},
	{"original_pattern", "pattern"},
	{"description", "rationale"},
}

var kindAliases = map[string]StepKind{
	"write_code":            KindWriteFile,
	"run_command_and_check": KindVerifyOutput,
}

func decodeStep(index int, raw json.RawMessage) (Step, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Step{}, &MalformedPlanError{Index: index, Rule: "step must be a JSON object", Err: err}
	}
	for _, a := range fieldAliases {
		v, ok := fields[a.alias]
		if !ok {
			continue
		}
		if _, exists := fields[a.canonical]; !exists {
			fields[a.canonical] = v
		}
	}

	kindStr, _, err := stringField(fields, "kind")
	if err != nil {
		return Step{}, &MalformedPlanError{Index: index, Rule: `"kind" must be a string`, Err: err}
	}
	kindStr = strings.ToLower(strings.TrimSpace(kindStr))
	if kindStr == "" {
		return Step{}, malformed(index, `missing "kind"`)
	}
	kind := StepKind(kindStr)
	if alias, ok := kindAliases[kindStr]; ok {
		kind = alias
	}
	if !kind.valid() {
		return Step{}, malformed(index, "unknown step kind %q", kindStr)
	}

	step := Step{Index: index, Kind: kind}

	target, _, err := stringField(fields, "target")
	if err != nil {
		return Step{}, &MalformedPlanError{Index: index, Rule: `"target" must be a string`, Err: err}
	}
	if strings.TrimSpace(target) == "" {
		return Step{}, malformed(index, "%s requires non-empty %q", kind, "target")
	}
	step.Target = target
	if kind.IsFile() {
		step.Target = strings.TrimSpace(target)
	}

	content, hasContent, err := stringField(fields, "content")
	if err != nil {
		return Step{}, &MalformedPlanError{Index: index, Rule: `"content" must be a string`, Err: err}
	}
	if hasContent {
		step.Content = &content
	}

	pattern, hasPattern, err := stringField(fields, "pattern")
	if err != nil {
		return Step{}, &MalformedPlanError{Index: index, Rule: `"pattern" must be a string`, Err: err}
	}
	if hasPattern {
		step.Pattern = &pattern
	}

	if rationale, _, err := stringField(fields, "rationale"); err == nil {
		step.Rationale = strings.TrimSpace(rationale)
	}

	if err := step.Validate(); err != nil {
		return Step{}, err
	}
	return step, nil
}

// stringField reads a string field. A missing field or JSON null is absent.
func stringField(fields map[string]json.RawMessage, name string) (string, bool, error) {
	raw, ok := fields[name]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Validate checks the step against the field rules of its kind. It is
// applied to parsed steps and again to plans loaded from disk.
func (s Step) Validate() error {
	i := s.Index
	if !s.Kind.valid() {
		return malformed(i, "unknown step kind %q", s.Kind)
	}
	if strings.TrimSpace(s.Target) == "" {
		return malformed(i, "%s requires non-empty %q", s.Kind, "target")
	}
	if s.Pattern != nil && s.Kind != KindEditFile {
		return malformed(i, "%s does not take %q", s.Kind, "pattern")
	}

	switch s.Kind {
	case KindCreateFile:
	case KindWriteFile:
		if s.Content == nil {
			return malformed(i, "%s requires %q", s.Kind, "content")
		}
	case KindEditFile:
		if s.Content == nil {
			return malformed(i, "%s requires %q", s.Kind, "content")
		}
		if s.Pattern != nil && *s.Pattern == "" {
			return malformed(i, "%s %q must not be empty", s.Kind, "pattern")
		}
	case KindRunCommand:
		if s.Content != nil {
			return malformed(i, "%s does not take %q", s.Kind, "content")
		}
	case KindVerifyOutput:
		if s.Content == nil {
			return malformed(i, "%s requires %q (expected output)", s.Kind, "content")
		}
	}
	return nil
}
