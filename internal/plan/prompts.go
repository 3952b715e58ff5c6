// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"fmt"
	"strings"
)

func analysisPrompt(request, fileContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an AI assistant helping a user to implement a project. The user's request is: %s\n\n", request)
	if fileContext != "" {
		sb.WriteString(fileContext)
	}
	sb.WriteString(`Your task is to analyze this request and understand what needs to be done.
Think about the approach you would take to implement this request, but DO NOT output a plan yet.
Just analyze the requirements, potential code structures, and approach.

Keep your response relatively brief - focus on understanding the task, not implementing it yet.
`)
	return sb.String()
}

const planningPrompt = `Now, based on your analysis, provide a step-by-step plan to implement the request.
Break the request into a sequence of steps the program can execute. Each step is a JSON object with a "kind" and these fields:

create_file: "target" (path relative to the working directory), optional "content" for the initial file content.
write_file: "target" and "content". The content replaces the whole file.
edit_file: "target", "pattern" and "content". The first occurrence of "pattern" in the file is replaced by "content".
run_command: "target" is the command to run in the working directory.
verify_output: "target" is the command to run, "content" is the exact output it must print.

Every step may also carry a short "rationale".

YOU MUST RESPOND WITH ONLY A JSON ARRAY of steps in exactly these formats:
[
  {"kind": "create_file", "target": "example.py"},
  {"kind": "write_file", "target": "example.py", "content": "print('Hello')"},
  {"kind": "edit_file", "target": "example.py", "pattern": "print('Hello')", "content": "print('Hello World')"},
  {"kind": "run_command", "target": "python example.py"},
  {"kind": "verify_output", "target": "python example.py", "content": "Hello World"}
]

IMPORTANT: Keep your response EXTREMELY CONCISE. ONLY return a valid JSON array of steps, nothing else. NO explanations, NO thinking, NO markdown.
`

func retryPrompt(err error) string {
	return fmt.Sprintf(`Your previous response could not be used: %s

Respond again with ONLY the JSON array of steps in the format described above. No other text.
`, err.Error())
}

func assistedEditPrompt(step Step, current string) string {
	return fmt.Sprintf(`Edit Request: in the file %s, replace the section that corresponds to

%s

with

%s

The exact text was not found, so locate the closest matching section.

File: %s
Content:
%s

Respond with the complete modified file inside a single fenced code block. Do not explain the changes.
`, step.Target, *step.Pattern, step.Text(), step.Target, current)
}

// noChangePhrases mark replies where the model declined to edit.
var noChangePhrases = []string{
	"i did not make any changes",
	"i have not made any changes",
	"no changes were made",
	"no changes are needed",
}

// ExtractFileContent pulls modified file content out of a model reply: the
// last fenced code block if there is one, otherwise the whole reply. It
// returns false when the reply says nothing was changed or is empty.
func ExtractFileContent(reply string) (string, bool) {
	text := strings.TrimSpace(StripThinking(reply))
	lower := strings.ToLower(text)
	for _, phrase := range noChangePhrases {
		if strings.Contains(lower, phrase) {
			return "", false
		}
	}

	parts := strings.Split(text, "```")
	if len(parts) >= 3 {
		block := parts[len(parts)-2]
		if len(parts)%2 == 0 {
			// Unterminated final fence: take the last complete block.
			block = parts[len(parts)-3]
		}
		block = stripLanguageLine(block)
		if strings.TrimSpace(block) == "" {
			return "", false
		}
		if !strings.HasSuffix(block, "\n") {
			block += "\n"
		}
		return block, true
	}

	if text == "" {
		return "", false
	}
	return text + "\n", true
}

// stripLanguageLine drops a leading info string such as "python".
func stripLanguageLine(block string) string {
	nl := strings.IndexByte(block, '\n')
	if nl < 0 {
		return block
	}
	first := strings.TrimSpace(block[:nl])
	if first == "" || !strings.ContainsAny(first, "(){};:,./\\\"'=+-*&^%$#@!~`|<>? ") {
		return block[nl+1:]
	}
	return block
}
