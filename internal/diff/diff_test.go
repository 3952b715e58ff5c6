// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompute_NewFile(t *testing.T) {
	d := Compute("test.txt", "", "line1\nline2\nline3")

	if d.Stats.FileMode != "new" {
		t.Errorf("FileMode = %q, want new", d.Stats.FileMode)
	}
	if d.Stats.Additions != 3 || d.Stats.Deletions != 0 {
		t.Errorf("stats = +%d -%d, want +3 -0", d.Stats.Additions, d.Stats.Deletions)
	}
	if len(d.Hunks) != 1 {
		t.Fatalf("hunks = %d, want 1", len(d.Hunks))
	}
	if got := d.Hunks[0].Header(); got != "@@ -0,0 +1,3 @@" {
		t.Errorf("header = %q", got)
	}
}

func TestCompute_Emptied(t *testing.T) {
	d := Compute("test.txt", "line1\nline2\nline3", "")

	if d.Stats.FileMode != "deleted" {
		t.Errorf("FileMode = %q, want deleted", d.Stats.FileMode)
	}
	if d.Stats.Deletions != 3 {
		t.Errorf("Deletions = %d, want 3", d.Stats.Deletions)
	}
}

func TestCompute_Modified(t *testing.T) {
	d := Compute("test.txt", "line1\nline2\nline3", "line1\nmodified\nline3\nline4")

	if d.Stats.FileMode != "modified" {
		t.Errorf("FileMode = %q", d.Stats.FileMode)
	}
	if d.Stats.Additions != 2 || d.Stats.Deletions != 1 {
		t.Errorf("stats = +%d -%d, want +2 -1", d.Stats.Additions, d.Stats.Deletions)
	}
}

func TestCompute_Unchanged(t *testing.T) {
	d := Compute("same.txt", "a\nb\n", "a\nb\n")

	if len(d.Hunks) != 0 {
		t.Errorf("expected no hunks, got %d", len(d.Hunks))
	}
	if d.Summary() != "No changes" {
		t.Errorf("Summary = %q", d.Summary())
	}
}

func TestCompute_IgnoresLineEndings(t *testing.T) {
	d := Compute("crlf.txt", "a\r\nb\r\n", "a\nb\n")
	if d.Stats.Additions != 0 || d.Stats.Deletions != 0 {
		t.Errorf("CRLF vs LF produced changes: +%d -%d", d.Stats.Additions, d.Stats.Deletions)
	}
}

func TestLines_Numbering(t *testing.T) {
	lines := Lines("a\nb\nc", "a\nx\nc")

	want := []Line{
		{Type: LineContext, Content: "a", OldLine: 1, NewLine: 1},
		{Type: LineRemoved, Content: "b", OldLine: 2},
		{Type: LineAdded, Content: "x", NewLine: 2},
		{Type: LineContext, Content: "c", OldLine: 3, NewLine: 3},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}
}

func TestHunks_SeparatedChanges(t *testing.T) {
	var oldLines, newLines []string
	for i := 1; i <= 30; i++ {
		oldLines = append(oldLines, fmt.Sprintf("line%d", i))
		newLines = append(newLines, fmt.Sprintf("line%d", i))
	}
	newLines[1] = "changed2"
	newLines[25] = "changed26"

	hunks := Hunks(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	if len(hunks) != 2 {
		t.Fatalf("hunks = %d, want 2", len(hunks))
	}

	first := hunks[0]
	if first.OldStart != 1 || first.NewStart != 1 {
		t.Errorf("first hunk starts at -%d +%d, want -1 +1", first.OldStart, first.NewStart)
	}
	// line1 + removed/added line2 + 3 lines of trailing context
	if first.OldCount != 5 || first.NewCount != 5 {
		t.Errorf("first hunk counts -%d +%d, want -5 +5", first.OldCount, first.NewCount)
	}

	second := hunks[1]
	if second.OldStart != 23 {
		t.Errorf("second hunk OldStart = %d, want 23", second.OldStart)
	}
}

func TestHunks_NearbyChangesMerge(t *testing.T) {
	old := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10"
	new := "1\nX\n3\n4\n5\n6\nY\n8\n9\n10"

	hunks := Hunks(old, new)
	if len(hunks) != 1 {
		t.Fatalf("hunks = %d, want 1 merged hunk", len(hunks))
	}
}

func TestFormatUnified(t *testing.T) {
	d := Compute("file.txt", "line1\nline2\nline3", "line1\nmodified\nline3")
	got := FormatUnified(d)

	want := strings.Join([]string{
		"--- a/file.txt",
		"+++ b/file.txt",
		"@@ -1,3 +1,3 @@",
		" line1",
		"-line2",
		"+modified",
		" line3",
		"",
	}, "\n")
	if got != want {
		t.Errorf("FormatUnified mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		old, new string
		want     string
	}{
		{"", "a\nb", "New file +2"},
		{"a\nb", "a\nc", "Modified +1 -1"},
		{"a", "", "File emptied -1"},
	}
	for _, tt := range tests {
		if got := Compute("f", tt.old, tt.new).Summary(); got != tt.want {
			t.Errorf("Summary(%q -> %q) = %q, want %q", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestLineType_Prefix(t *testing.T) {
	if LineAdded.Prefix() != "+" || LineRemoved.Prefix() != "-" || LineContext.Prefix() != " " {
		t.Error("unexpected prefixes")
	}
}
