// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/Legorobotdude/PrivateCode/internal/diff"
	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// maxPreviewLines bounds file previews and diffs in confirmation prompts.
const maxPreviewLines = 400

// Renderer formats model output, plans and file changes for the terminal.
// With color off every method returns plain text.
type Renderer struct {
	color    bool
	markdown bool
	width    int

	mdOnce sync.Once
	md     *glamour.TermRenderer
}

// NewRenderer creates a renderer. width <= 0 means DefaultTerminalWidth.
func NewRenderer(color, markdown bool, width int) *Renderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return &Renderer{color: color, markdown: markdown, width: width}
}

// Color reports whether output is styled.
func (r *Renderer) Color() bool {
	return r.color
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Markdown renders model prose. It returns text unchanged when markdown is
// disabled or rendering fails.
func (r *Renderer) Markdown(text string) string {
	if !r.markdown || !r.color || strings.TrimSpace(text) == "" {
		return text
	}
	r.mdOnce.Do(func() {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.width-4),
		)
		if err == nil {
			r.md = md
		}
	})
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return out
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// Highlight colors code, picking the lexer from filename and then from the
// content itself.
func (r *Renderer) Highlight(code, filename string) string {
	if !r.color || code == "" {
		return code
	}

	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// =============================================================================
// FILE CHANGES
// =============================================================================

// Diff renders a colored unified diff of the record.
func (r *Renderer) Diff(rec *fileops.Record) string {
	if rec == nil || rec.Diff == nil {
		return ""
	}
	text := limitLines(diff.FormatUnified(rec.Diff), maxPreviewLines)
	if !r.color {
		return text
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = diffHeaderStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = diffHunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = diffAddStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = diffDelStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// Preview renders a proposed change: highlighted content for a new file,
// a diff for an existing one.
func (r *Renderer) Preview(rec *fileops.Record, content string) string {
	if rec == nil {
		return ""
	}
	if !rec.ExistedBefore {
		if content == "" {
			return DimStyle.Render("(empty file)") + "\n"
		}
		body := r.Highlight(limitLines(content, maxPreviewLines), rec.Path)
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		return body
	}
	if rec.Diff != nil && rec.Diff.Stats.FileMode == "unchanged" {
		return DimStyle.Render("(no changes)") + "\n"
	}
	return r.Diff(rec)
}

// limitLines keeps the first n lines of s and notes how many were dropped.
func limitLines(s string, n int) string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "") + fmt.Sprintf("... (%d more lines)\n", len(lines)-n)
}

// =============================================================================
// PLANS
// =============================================================================

// PlanTable lists the steps of p with their current state.
func (r *Renderer) PlanTable(p *plan.Plan) string {
	var sb strings.Builder
	numWidth := len(fmt.Sprint(len(p.Steps)))
	// "#" column, badge, two gaps
	summaryWidth := r.width - numWidth - 12
	if summaryWidth < 20 {
		summaryWidth = 20
	}

	for i, step := range p.Steps {
		var outcome plan.Outcome
		if res, ok := p.LastResult(i); ok {
			outcome = res.Outcome
		}
		num := runewidth.FillLeft(fmt.Sprint(i+1), numWidth)
		summary := util.TruncateWidth(util.FirstLine(step.Summary()), summaryWidth)
		fmt.Fprintf(&sb, " %s  %s  %s\n", num, OutcomeBadge(outcome), summary)
		if step.Rationale != "" {
			indent := strings.Repeat(" ", numWidth+11)
			fmt.Fprintf(&sb, "%s%s\n", indent, DimStyle.Render(util.TruncateWidth(step.Rationale, summaryWidth)))
		}
	}
	return sb.String()
}

// PlanSummary is the one-line tally shown after a run.
func (r *Renderer) PlanSummary(p *plan.Plan) string {
	s, f, k, pending := p.Counts()
	line := fmt.Sprintf("%s  %d succeeded, %d failed, %d skipped", StatusBadge(p.Status), s, f, k)
	if pending > 0 {
		line += fmt.Sprintf(", %d pending", pending)
	}
	return line
}
