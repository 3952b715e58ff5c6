// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

func str(s string) *string { return &s }

var fixedNow = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func testOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func samplePlan() *plan.Plan {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &plan.Plan{
		ID:          "20250601-120000-abcd1234",
		Description: "add a greeting: hello/world",
		Model:       "qwen2.5-coder:14b",
		Analysis:    "Write the file, then run it.",
		Status:      plan.StatusCompleted,
		Steps: []plan.Step{
			{Index: 0, Kind: plan.KindCreateFile, Target: "hello.py", Content: str("print(\"hi\")\n"), Rationale: "entry point"},
			{Index: 1, Kind: plan.KindRunCommand, Target: "python hello.py"},
			{Index: 2, Kind: plan.KindEditFile, Target: "README.md", Pattern: str("```old```"), Content: str("new")},
		},
		Results: []plan.StepResult{
			{StepIndex: 0, Outcome: plan.OutcomeSucceeded, Detail: "created hello.py", Timestamp: created.Add(time.Minute)},
			{StepIndex: 1, Outcome: plan.OutcomeFailed, Detail: "exit code 1\nTraceback", Timestamp: created.Add(2 * time.Minute)},
			{StepIndex: 1, Outcome: plan.OutcomeSkipped, Detail: "", Timestamp: created.Add(3 * time.Minute)},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(3 * time.Minute),
	}
}

// =============================================================================
// FORMAT SELECTION
// =============================================================================

func TestForFormat(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		mime string
	}{
		{"md", ".md", "text/markdown"},
		{"Markdown", ".md", "text/markdown"},
		{"json", ".json", "application/json"},
		{"htm", ".html", "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := ForFormat(tt.name, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, exp.FileExtension())
			assert.Equal(t, tt.mime, exp.MimeType())
		})
	}

	_, err := ForFormat("pdf", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportersRejectEmptyPlans(t *testing.T) {
	for _, exp := range []Exporter{NewMarkdownExporter(nil), NewJSONExporter(nil), NewHTMLExporter(nil)} {
		_, err := exp.Export(nil)
		assert.Error(t, err)
		_, err = exp.Export(&plan.Plan{ID: "x"})
		assert.Error(t, err)
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	data, err := NewMarkdownExporter(testOptions("")).Export(samplePlan())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "---\ntitle: \"add a greeting: hello/world\"\n"))
	assert.Contains(t, out, "generator: privatecode\n")
	assert.Contains(t, out, "exported: 2025-06-01T12:30:00Z\n")
	assert.Contains(t, out, "- **Progress**: 1 succeeded, 0 failed, 1 skipped, 1 pending")
	assert.Contains(t, out, "## Analysis\n\nWrite the file, then run it.")

	// Latest result wins in the step table.
	assert.Contains(t, out, "| 2 | Run: python hello.py | [SKIP] skipped |")
	assert.Contains(t, out, "| 3 | ")
	assert.Contains(t, out, "[ .. ] pending")

	assert.Contains(t, out, "*entry point*")
	assert.Contains(t, out, "```bash\npython hello.py\n```")
	// A pattern holding backticks gets a longer fence.
	assert.Contains(t, out, "````\n```old```\n````")

	// The log keeps every attempt.
	assert.Contains(t, out, "step 2 [FAIL] failed: exit code 1")
	assert.Contains(t, out, "step 2 [SKIP] skipped")
}

func TestMarkdownExporter_DetailsTrimmed(t *testing.T) {
	p := samplePlan()
	p.Results = p.Results[:2]

	opts := testOptions("")
	opts.IncludeDetails = false
	data, err := NewMarkdownExporter(opts).Export(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Traceback")

	opts.IncludeDetails = true
	data, err = NewMarkdownExporter(opts).Export(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Traceback")
}

// =============================================================================
// JSON / HTML
// =============================================================================

func TestJSONExporter_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	p := samplePlan()

	path, err := ToFile(p, NewJSONExporter(nil), testOptions(dir))
	require.NoError(t, err)

	loaded, err := plan.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
	assert.Equal(t, p.Steps, loaded.Steps)
	assert.Len(t, loaded.Results, 3)
}

func TestHTMLExporter(t *testing.T) {
	p := samplePlan()
	p.Description = "<script>alert(1)</script>"

	opts := testOptions("")
	opts.Theme = "light"
	data, err := NewHTMLExporter(opts).Export(p)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "<body class=\"light-theme\">")
	assert.Contains(t, out, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, out, "<script>alert")
	assert.Contains(t, out, "step outcome-succeeded")
	assert.Contains(t, out, "step outcome-pending")
	assert.Contains(t, out, "created hello.py")
	assert.Contains(t, out, "<pre")
}

// =============================================================================
// FILES
// =============================================================================

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := ToFile(samplePlan(), NewMarkdownExporter(nil), testOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "plan_20250601-120000-abcd1234_add_a_greeting-_hello-world.md"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "run", sanitizeFilename("   "))
	assert.Equal(t, "fix_bug", sanitizeFilename("fix bug\nsecond line"))
	assert.Equal(t, "a-b-c", sanitizeFilename("a/b\\c"))
	assert.LessOrEqual(t, len([]rune(sanitizeFilename(strings.Repeat("x", 100)))), 40)
}
