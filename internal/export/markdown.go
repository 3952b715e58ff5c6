// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a plan run as Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders p as Markdown with YAML frontmatter.
func (e *MarkdownExporter) Export(p *plan.Plan) ([]byte, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	now := e.options.now()

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(p.Description))
	fmt.Fprintf(&sb, "id: %s\n", p.ID)
	if p.Model != "" {
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(p.Model))
	}
	fmt.Fprintf(&sb, "status: %s\n", p.Status)
	fmt.Fprintf(&sb, "created: %s\n", p.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "updated: %s\n", p.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "steps: %d\n", len(p.Steps))
	fmt.Fprintf(&sb, "exported: %s\n", now.Format(time.RFC3339))
	sb.WriteString("generator: privatecode\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(firstLine(p.Description)))

	sb.WriteString("## Run Information\n\n")
	fmt.Fprintf(&sb, "- **Status**: %s\n", p.Status)
	if p.Model != "" {
		fmt.Fprintf(&sb, "- **Model**: %s\n", p.Model)
	}
	fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(p.CreatedAt))
	fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(p.UpdatedAt))
	fmt.Fprintf(&sb, "- **Progress**: %s\n\n", tally(p))

	if strings.TrimSpace(p.Description) != firstLine(p.Description) {
		sb.WriteString("## Request\n\n")
		sb.WriteString(strings.TrimSpace(p.Description))
		sb.WriteString("\n\n")
	}

	if a := strings.TrimSpace(p.Analysis); a != "" {
		sb.WriteString("## Analysis\n\n")
		sb.WriteString(a)
		sb.WriteString("\n\n")
	}

	stepRows := rows(p, e.options.IncludeDetails)

	sb.WriteString("## Steps\n\n")
	sb.WriteString("| # | Step | Outcome | When |\n")
	sb.WriteString("|---|------|---------|------|\n")
	for _, r := range stepRows {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
			r.Number, escapeTableCell(r.Summary), outcomeLabel(r.Outcome), formatShortTimestamp(r.When))
	}
	sb.WriteString("\n")

	for _, r := range stepRows {
		fmt.Fprintf(&sb, "### Step %d: %s\n\n", r.Number, escapeMarkdown(r.Summary))
		if r.Step.Rationale != "" {
			fmt.Fprintf(&sb, "*%s*\n\n", strings.TrimSpace(r.Step.Rationale))
		}
		if r.Step.HasPattern() {
			writeFenced(&sb, "Pattern", "", *r.Step.Pattern)
		}
		if r.Step.Kind.IsCommand() {
			writeFenced(&sb, "Command", "bash", r.Step.Target)
		}
		if r.Step.Content != nil {
			label := "Content"
			if r.Step.Kind == plan.KindVerifyOutput {
				label = "Expected output"
			}
			writeFenced(&sb, label, "", *r.Step.Content)
		}
		fmt.Fprintf(&sb, "**Outcome**: %s\n\n", outcomeLabel(r.Outcome))
		if r.Detail != "" {
			writeFenced(&sb, "Detail", "", r.Detail)
		}
	}

	if len(p.Results) > 0 {
		sb.WriteString("## Result Log\n\n")
		for _, res := range p.Results {
			fmt.Fprintf(&sb, "- %s step %d %s",
				formatTimestamp(res.Timestamp), res.StepIndex+1, outcomeLabel(string(res.Outcome)))
			if line := firstLine(res.Detail); line != "" {
				fmt.Fprintf(&sb, ": %s", escapeMarkdown(line))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "*Exported from privatecode on %s*\n", now.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func writeFenced(sb *strings.Builder, label, lang, body string) {
	f := fence(body)
	fmt.Fprintf(sb, "**%s**:\n\n%s%s\n", label, f, lang)
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(f)
	sb.WriteString("\n\n")
}

// outcomeLabel mirrors the terminal badges.
func outcomeLabel(outcome string) string {
	switch plan.Outcome(outcome) {
	case plan.OutcomeSucceeded:
		return "[OK] succeeded"
	case plan.OutcomeFailed:
		return "[FAIL] failed"
	case plan.OutcomeSkipped:
		return "[SKIP] skipped"
	default:
		return "[ .. ] pending"
	}
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(escapeMarkdown(s), "|", "\\|")
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
