// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// ErrUnknownFormat is returned by ForFormat for an unsupported name.
var ErrUnknownFormat = errors.New("unsupported export format")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a plan run in one format.
type Exporter interface {
	// Export renders p.
	Export(p *plan.Plan) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where ToFile writes. Default: current directory
	OutputDir string

	// IncludeDetails includes each result's full detail text (command
	// output, diff summary). Without it only the first line is kept.
	IncludeDetails bool

	// Theme for HTML export ("light" or "dark"). Default: "dark"
	Theme string

	// Now stamps the report. Default: time.Now
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:      ".",
		IncludeDetails: true,
		Theme:          "dark",
		Now:            time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// ForFormat returns the exporter for a format name: md, markdown, json,
// html or htm.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile renders p and writes it to OutputDir as
// plan_<id>_<summary><ext>. It returns the written path.
func ToFile(p *plan.Plan, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	content, err := exporter.Export(p)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	filename := fmt.Sprintf("plan_%s_%s%s", p.ID, sanitizeFilename(p.Description), exporter.FileExtension())
	outputPath := filepath.Join(dir, filename)

	// Reports can quote file contents, so keep them owner-only like the plans.
	if err := util.AtomicWriteFile(outputPath, content, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return outputPath, nil
}

// validate rejects plans a report cannot describe.
func validate(p *plan.Plan) error {
	if p == nil {
		return errors.New("plan is nil")
	}
	if p.ID == "" {
		return errors.New("plan has no id")
	}
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename turns free text into a short, portable file name part.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(util.FirstLine(s)), 40)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}

// stepRow is what every format shows per step.
type stepRow struct {
	Number  int
	Summary string
	Outcome string
	Detail  string
	When    time.Time
	Step    plan.Step
}

func rows(p *plan.Plan, details bool) []stepRow {
	out := make([]stepRow, len(p.Steps))
	for i, s := range p.Steps {
		row := stepRow{Number: i + 1, Summary: s.Summary(), Outcome: "pending", Step: s}
		if res, ok := p.LastResult(i); ok {
			row.Outcome = string(res.Outcome)
			row.When = res.Timestamp
			row.Detail = res.Detail
			if !details {
				row.Detail = util.FirstLine(res.Detail)
			}
		}
		out[i] = row
	}
	return out
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}

// tally reads "2 succeeded, 1 failed, 0 skipped, 1 pending".
func tally(p *plan.Plan) string {
	s, f, k, pending := p.Counts()
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped, %d pending", s, f, k, pending)
}

// fence picks a code fence longer than any backtick run in s.
func fence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

func firstLine(s string) string {
	return strings.TrimSpace(util.FirstLine(strings.TrimSpace(s)))
}
