// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

func strPtr(s string) *string { return &s }

func TestPlanTable(t *testing.T) {
	p := &plan.Plan{
		Steps: []plan.Step{
			{Index: 0, Kind: plan.KindCreateFile, Target: "hello.py", Content: strPtr("print('hi')"), Rationale: "entry point"},
			{Index: 1, Kind: plan.KindRunCommand, Target: "python hello.py"},
		},
	}
	p.Stamp(time.Now())
	p.Results = append(p.Results, plan.StepResult{StepIndex: 0, Outcome: plan.OutcomeSucceeded})

	table := NewRenderer(false, false, 80).PlanTable(p)
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "1  [OK]")
	assert.Contains(t, lines[0], "hello.py")
	assert.Contains(t, lines[1], "entry point")
	assert.Contains(t, lines[2], "2  [ .. ]")
	assert.Contains(t, lines[2], "python hello.py")
}

func TestPlanSummary(t *testing.T) {
	p := &plan.Plan{
		Status: plan.StatusInProgress,
		Steps: []plan.Step{
			{Index: 0, Kind: plan.KindRunCommand, Target: "a"},
			{Index: 1, Kind: plan.KindRunCommand, Target: "b"},
			{Index: 2, Kind: plan.KindRunCommand, Target: "c"},
		},
		Results: []plan.StepResult{
			{StepIndex: 0, Outcome: plan.OutcomeSucceeded},
			{StepIndex: 1, Outcome: plan.OutcomeFailed},
		},
	}
	got := NewRenderer(false, false, 80).PlanSummary(p)
	assert.Contains(t, got, "1 succeeded, 1 failed, 0 skipped, 1 pending")
}

func TestPreview_NewAndChangedFiles(t *testing.T) {
	dir := t.TempDir()
	engine := fileops.New()
	engine.Root = dir
	r := NewRenderer(false, false, 80)

	rec, err := engine.Preview("new.txt", "hello\n")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", r.Preview(rec, "hello\n"))

	rec, err = engine.Preview("empty.txt", "")
	require.NoError(t, err)
	assert.Contains(t, r.Preview(rec, ""), "(empty file)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("a\nb\n"), 0o644))
	rec, err = engine.Preview("old.txt", "a\nc\n")
	require.NoError(t, err)
	out := r.Preview(rec, "a\nc\n")
	assert.Contains(t, out, "-b")
	assert.Contains(t, out, "+c")
	assert.Contains(t, out, "@@")

	rec, err = engine.Preview("old.txt", "a\nb\n")
	require.NoError(t, err)
	assert.Contains(t, r.Preview(rec, "a\nb\n"), "(no changes)")
}

func TestLimitLines(t *testing.T) {
	assert.Equal(t, "a\nb\n", limitLines("a\nb\n", 2))
	assert.Equal(t, "a\nb\n... (2 more lines)\n", limitLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a\n... (2 more lines)\n", limitLines("a\nb\nc", 1))
}

func TestHighlight_PlainWithoutColor(t *testing.T) {
	code := "package main\n\nfunc main() {}\n"
	assert.Equal(t, code, NewRenderer(false, false, 80).Highlight(code, "main.go"))
}

func TestMarkdown_RawWhenDisabled(t *testing.T) {
	text := "# Title\n\n- item"
	assert.Equal(t, text, NewRenderer(true, false, 80).Markdown(text))
	assert.Equal(t, text, NewRenderer(false, true, 80).Markdown(text))
}
