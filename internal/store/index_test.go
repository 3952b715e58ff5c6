// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

func openTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, dir
}

func samplePlan(id string, created time.Time) *plan.Plan {
	content := "print('hi')\n"
	p := &plan.Plan{
		ID:          id,
		Description: "say hi",
		Model:       "coder",
		Status:      plan.StatusInProgress,
		Steps: []plan.Step{
			{Index: 0, Kind: plan.KindCreateFile, Target: "hi.py", Content: &content},
			{Index: 1, Kind: plan.KindRunCommand, Target: "python hi.py"},
			{Index: 2, Kind: plan.KindRunCommand, Target: "rm hi.py"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	p.Results = []plan.StepResult{
		{StepIndex: 0, Outcome: plan.OutcomeSucceeded, Timestamp: created},
		{StepIndex: 1, Outcome: plan.OutcomeFailed, Detail: "exit code 1", Timestamp: created},
	}
	return p
}

func TestOpen_CreatesLayout(t *testing.T) {
	_, dir := openTestIndex(t)

	_, err := os.Stat(filepath.Join(dir, "runs.db"))
	assert.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "plans"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSave_WritesFileAndRow(t *testing.T) {
	idx, dir := openTestIndex(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := samplePlan("20250301-120000-abcd1234", created)

	require.NoError(t, idx.Save(p))

	path := filepath.Join(dir, "plans", p.ID+".json")
	_, err := os.Stat(path)
	require.NoError(t, err)

	r, err := idx.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "say hi", r.Description)
	assert.Equal(t, "coder", r.Model)
	assert.Equal(t, plan.StatusInProgress, r.Status)
	assert.Equal(t, 3, r.Steps)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 0, r.Skipped)
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, path, r.Path)
	assert.True(t, r.Created.Equal(created))
}

func TestSave_UpdatesExistingRow(t *testing.T) {
	idx, _ := openTestIndex(t)
	p := samplePlan("p1", time.Now())
	require.NoError(t, idx.Save(p))

	p.Results = append(p.Results, plan.StepResult{StepIndex: 2, Outcome: plan.OutcomeSkipped})
	p.Status = plan.StatusCompleted
	p.UpdatedAt = p.UpdatedAt.Add(time.Minute)
	require.NoError(t, idx.Save(p))

	runs, err := idx.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, plan.StatusCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, 0, runs[0].Pending())
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	idx, _ := openTestIndex(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, idx.Save(samplePlan(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := idx.Runs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestGet_NotFound(t *testing.T) {
	idx, _ := openTestIndex(t)
	_, err := idx.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLoad_RoundTrip(t *testing.T) {
	idx, _ := openTestIndex(t)
	p := samplePlan("p2", time.Now())
	require.NoError(t, idx.Save(p))

	got, path, err := idx.Load("p2")
	require.NoError(t, err)
	assert.Equal(t, idx.Plans().Path("p2"), path)
	assert.Equal(t, p.Description, got.Description)
	require.Len(t, got.Results, 2)
	assert.Equal(t, plan.OutcomeFailed, got.Results[1].Outcome)
	assert.Equal(t, "exit code 1", got.Results[1].Detail)
}

func TestRebuild_FromPlanFiles(t *testing.T) {
	idx, dir := openTestIndex(t)

	// Written straight to disk, bypassing the index.
	fs := plan.NewFileStore(filepath.Join(dir, "plans"))
	require.NoError(t, fs.Save(samplePlan("a", time.Now())))
	require.NoError(t, fs.Save(samplePlan("b", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans", "junk.json"), []byte("{"), 0o600))

	runs, err := idx.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	n, err := idx.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err = idx.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestClosed(t *testing.T) {
	idx, _ := openTestIndex(t)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := idx.Runs(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)

	// The plan file still lands even with the index gone.
	assert.NoError(t, idx.Save(samplePlan("late", time.Now())))
}
