// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// maxLCSCells bounds the LCS table. Beyond it the diff degrades to a single
// remove-all/add-all hunk instead of allocating a huge matrix.
const maxLCSCells = 4_000_000

// =============================================================================
// TYPES
// =============================================================================

// LineType classifies a line in a diff.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// String returns the name of the line type.
func (t LineType) String() string {
	switch t {
	case LineContext:
		return "context"
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Prefix returns the unified-diff marker for the line type.
func (t LineType) Prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a diff. OldLine is 0 for added lines and NewLine is 0
// for removed lines; both are 1-indexed otherwise.
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	OldLine int      `json:"old_line,omitempty"`
	NewLine int      `json:"new_line,omitempty"`
}

// Hunk is a contiguous run of changes plus surrounding context.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldCount int    `json:"old_count"`
	NewStart int    `json:"new_start"`
	NewCount int    `json:"new_count"`
	Lines    []Line `json:"lines"`
}

// Stats counts the changed lines of a diff.
type Stats struct {
	Additions int
	Deletions int
	FileMode  string // "new", "modified", "deleted", "unchanged"
}

// Diff is the full comparison of two versions of one file.
type Diff struct {
	FilePath string
	Hunks    []Hunk
	Stats    Stats
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute diffs oldContent against newContent. Both CRLF and LF input are
// accepted; line terminators are not part of the compared text.
func Compute(filePath, oldContent, newContent string) *Diff {
	lines := Lines(oldContent, newContent)

	d := &Diff{
		FilePath: filePath,
		Hunks:    group(lines),
	}
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			d.Stats.Additions++
		case LineRemoved:
			d.Stats.Deletions++
		}
	}

	switch {
	case oldContent == newContent:
		d.Stats.FileMode = "unchanged"
	case oldContent == "":
		d.Stats.FileMode = "new"
	case newContent == "":
		d.Stats.FileMode = "deleted"
	default:
		d.Stats.FileMode = "modified"
	}
	return d
}

// Hunks is shorthand for Compute(...).Hunks.
func Hunks(oldContent, newContent string) []Hunk {
	return group(Lines(oldContent, newContent))
}

// Lines returns the full line-by-line edit script from old to new.
func Lines(oldContent, newContent string) []Line {
	a := splitLines(oldContent)
	b := splitLines(newContent)

	// Trim the common prefix and suffix; the LCS only needs the middle.
	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}

	out := make([]Line, 0, len(a)+len(b))
	for i := 0; i < pre; i++ {
		out = append(out, Line{Type: LineContext, Content: a[i], OldLine: i + 1, NewLine: i + 1})
	}
	out = append(out, middle(a[pre:len(a)-suf], b[pre:len(b)-suf], pre)...)
	for i := 0; i < suf; i++ {
		ai := len(a) - suf + i
		bi := len(b) - suf + i
		out = append(out, Line{Type: LineContext, Content: a[ai], OldLine: ai + 1, NewLine: bi + 1})
	}
	return out
}

// middle diffs the differing core of two line slices. offset is the number
// of common prefix lines already emitted.
func middle(a, b []string, offset int) []Line {
	m, n := len(a), len(b)
	var out []Line

	if m*n > maxLCSCells || m == 0 || n == 0 {
		for i, s := range a {
			out = append(out, Line{Type: LineRemoved, Content: s, OldLine: offset + i + 1})
		}
		for j, s := range b {
			out = append(out, Line{Type: LineAdded, Content: s, NewLine: offset + j + 1})
		}
		return out
	}

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && a[i] == b[j]:
			out = append(out, Line{Type: LineContext, Content: a[i], OldLine: offset + i + 1, NewLine: offset + j + 1})
			i++
			j++
		case j >= n || (i < m && lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, Line{Type: LineRemoved, Content: a[i], OldLine: offset + i + 1})
			i++
		default:
			out = append(out, Line{Type: LineAdded, Content: b[j], NewLine: offset + j + 1})
			j++
		}
	}
	return out
}

// splitLines splits content on LF, dropping a CR before each LF and the
// empty element produced by a trailing newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// group collects changed lines into hunks, keeping ContextLines of context on
// each side and merging hunks whose context would overlap.
func group(lines []Line) []Hunk {
	var hunks []Hunk

	i := 0
	for i < len(lines) {
		if lines[i].Type == LineContext {
			i++
			continue
		}

		start := i - ContextLines
		if start < 0 {
			start = 0
		}

		// Extend past every change that is within 2*ContextLines of the last.
		end := i
		for j := i; j < len(lines); j++ {
			if lines[j].Type != LineContext {
				end = j
				continue
			}
			if j-end > 2*ContextLines {
				break
			}
		}

		stop := end + ContextLines + 1
		if stop > len(lines) {
			stop = len(lines)
		}

		hunks = append(hunks, makeHunk(lines[start:stop]))
		i = stop
	}
	return hunks
}

func makeHunk(lines []Line) Hunk {
	h := Hunk{Lines: append([]Line(nil), lines...)}
	for _, l := range lines {
		if l.Type != LineAdded {
			if h.OldStart == 0 {
				h.OldStart = l.OldLine
			}
			h.OldCount++
		}
		if l.Type != LineRemoved {
			if h.NewStart == 0 {
				h.NewStart = l.NewLine
			}
			h.NewCount++
		}
	}
	return h
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatUnified renders d in unified diff format.
func FormatUnified(d *Diff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", d.FilePath)
	fmt.Fprintf(&sb, "+++ b/%s\n", d.FilePath)
	for _, h := range d.Hunks {
		sb.WriteString(h.Header())
		sb.WriteByte('\n')
		for _, l := range h.Lines {
			sb.WriteString(l.Type.Prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Header returns the "@@ -a,b +c,d @@" line for the hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// Summary returns a short description such as "Modified +3 -1".
func (d *Diff) Summary() string {
	var parts []string
	switch d.Stats.FileMode {
	case "new":
		parts = append(parts, "New file")
	case "deleted":
		parts = append(parts, "File emptied")
	case "unchanged":
		return "No changes"
	default:
		parts = append(parts, "Modified")
	}
	if d.Stats.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Stats.Additions))
	}
	if d.Stats.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Stats.Deletions))
	}
	return strings.Join(parts, " ")
}
