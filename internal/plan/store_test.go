// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^20250304-050607-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewID(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)))
}

func TestFileStore_SaveLoad(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "plans"))
	p := newPlan(
		Step{Kind: KindWriteFile, Target: "a.txt", Content: str("")},
		Step{Kind: KindEditFile, Target: "b.txt", Pattern: str("x"), Content: str("y")},
	)
	p.Stamp(time.Now())
	p.Results = append(p.Results, StepResult{StepIndex: 0, Outcome: OutcomeSkipped, Timestamp: time.Now()})
	require.NoError(t, store.Save(p))

	data, err := os.ReadFile(store.Path(p.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"id\": ")

	loaded, path, err := store.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Path(p.ID), path)
	assert.Equal(t, p.ID, loaded.ID)
	require.NotNil(t, loaded.Steps[0].Content)
	assert.Equal(t, "", *loaded.Steps[0].Content)
	assert.Equal(t, "x", *loaded.Steps[1].Pattern)
	assert.Len(t, loaded.Results, 1)

	byPath, _, err := store.Load(store.Path(p.ID))
	require.NoError(t, err)
	assert.Equal(t, p.ID, byPath.ID)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, _, err := store.Load("20250101-000000-deadbeef")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestFileStore_List(t *testing.T) {
	store := NewFileStore(t.TempDir())
	older := newPlan(Step{Kind: KindRunCommand, Target: "ls"})
	older.Stamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := newPlan(Step{Kind: KindRunCommand, Target: "pwd"})
	newer.Stamp(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(older))
	require.NoError(t, store.Save(newer))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "junk.json"), []byte("{"), 0o600))

	plans, errs := store.List()
	require.Len(t, plans, 2)
	assert.Equal(t, newer.ID, plans[0].ID)
	assert.Len(t, errs, 1)
}

func TestLoadFile_HandWrittenSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"type": "run_command", "command": "go test ./..."}]`), 0o644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, p.ID)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, "go test ./...", p.Steps[0].Target)
}

func TestLoadFile_RevalidatesSavedSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "x", "status": "draft", "steps": [{"kind": "run_command", "target": "ls", "content": "nope"}]}`), 0o644))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrMalformedPlan)
}

func TestPlanCounts(t *testing.T) {
	p := newPlan(
		Step{Kind: KindRunCommand, Target: "a"},
		Step{Kind: KindRunCommand, Target: "b"},
		Step{Kind: KindRunCommand, Target: "c"},
	)
	p.Results = []StepResult{
		{StepIndex: 0, Outcome: OutcomeFailed},
		{StepIndex: 1, Outcome: OutcomeSkipped},
		{StepIndex: 0, Outcome: OutcomeSucceeded},
	}
	s, f, k, pending := p.Counts()
	assert.Equal(t, []int{1, 0, 1, 1}, []int{s, f, k, pending})
	assert.Equal(t, "2/3", p.Progress())
	assert.Equal(t, 2, p.NextPending())

	last, ok := p.LastResult(0)
	require.True(t, ok)
	assert.Equal(t, OutcomeSucceeded, last.Outcome)
}

func TestReopen(t *testing.T) {
	p := newPlan(Step{Kind: KindRunCommand, Target: "ls"})
	assert.Error(t, p.Reopen())
	p.Status = StatusAborted
	require.NoError(t, p.Reopen())
	assert.Equal(t, StatusInProgress, p.Status)
}
