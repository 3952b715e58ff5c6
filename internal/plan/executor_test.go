// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/runner"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
)

func str(s string) *string { return &s }

type harness struct {
	dir       string
	confirmer *scriptedConfirmer
	runner    CommandRunner
	store     *memStore
	cfg       ExecConfig
	assistant Assistant
}

func newHarness(t *testing.T, decisions ...Decision) *harness {
	t.Helper()
	return &harness{
		dir:       t.TempDir(),
		confirmer: script(decisions...),
		runner:    &fakeRunner{},
		store:     &memStore{},
		cfg:       DefaultExecConfig(),
	}
}

func (h *harness) executor() *Executor {
	files := fileops.New()
	files.Root = h.dir
	clock := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	return NewExecutor(h.cfg, Deps{
		Confirmer:  h.confirmer,
		Runner:     h.runner,
		Files:      files,
		Classifier: safety.NewClassifier(safety.DefaultRules(), nil),
		Store:      h.store,
		Assistant:  h.assistant,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(h.path(name))
	require.NoError(t, err)
	return string(data)
}

func newPlan(steps ...Step) *Plan {
	for i := range steps {
		steps[i].Index = i
	}
	return &Plan{Description: "test", Status: StatusDraft, Steps: steps}
}

func outcomes(p *Plan) []Outcome {
	var out []Outcome
	for _, r := range p.Results {
		out = append(out, r.Outcome)
	}
	return out
}

func TestRun_CreateThenCat(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	h := newHarness(t, Accept(), Accept())
	h.runner = &runner.Runner{Shell: []string{sh, "-c"}, Dir: h.dir}
	fileStore := NewFileStore(filepath.Join(h.dir, "plans"))

	p := newPlan(
		Step{Kind: KindCreateFile, Target: "a.txt", Content: str("hi")},
		Step{Kind: KindRunCommand, Target: "cat a.txt"},
	)
	ex := h.executor()
	ex.deps.Store = fileStore

	require.NoError(t, ex.Run(context.Background(), p))

	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "hi", h.read(t, "a.txt"))
	require.Len(t, p.Results, 2)
	assert.Equal(t, 0, p.Results[0].StepIndex)
	assert.Equal(t, 1, p.Results[1].StepIndex)
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeSucceeded}, outcomes(p))
	assert.Contains(t, p.Results[1].Detail, "hi")

	saved, err := LoadFile(fileStore.Path(p.ID))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Len(t, saved.Results, 2)
}

func TestRun_DangerousDeclined(t *testing.T) {
	h := newHarness(t, Accept(), Accept())
	fr := &fakeRunner{}
	h.runner = fr

	p := newPlan(
		Step{Kind: KindCreateFile, Target: "a.txt", Content: str("hi")},
		Step{Kind: KindRunCommand, Target: "rm -rf /tmp/x"},
	)
	require.NoError(t, h.executor().Run(context.Background(), p))

	require.Len(t, h.confirmer.prompts, 2)
	pr := h.confirmer.prompts[1]
	assert.Equal(t, safety.Dangerous, pr.Classification.Tier)
	assert.Equal(t, DefaultDangerousToken, pr.RequireToken)

	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeSkipped}, outcomes(p))
	assert.Empty(t, fr.calls)
	assert.FileExists(t, h.path("a.txt"))
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestRun_DangerousWithToken(t *testing.T) {
	h := newHarness(t, Confirm(DefaultDangerousToken))
	fr := &fakeRunner{}
	h.runner = fr

	p := newPlan(Step{Kind: KindRunCommand, Target: "sudo true"})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []string{"sudo true"}, fr.calls)
	assert.Equal(t, []Outcome{OutcomeSucceeded}, outcomes(p))
}

func TestRun_CustomDangerousToken(t *testing.T) {
	h := newHarness(t, Confirm(DefaultDangerousToken))
	h.cfg.DangerousToken = "I am sure"
	fr := &fakeRunner{}
	h.runner = fr

	p := newPlan(Step{Kind: KindRunCommand, Target: "sudo true"})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Empty(t, fr.calls)
	assert.Equal(t, []Outcome{OutcomeSkipped}, outcomes(p))
}

func TestRun_SkipDecision(t *testing.T) {
	h := newHarness(t, Skip())
	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt"})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeSkipped}, outcomes(p))
	assert.NoFileExists(t, h.path("a.txt"))
}

func TestRun_CommandFailureContinues(t *testing.T) {
	h := newHarness(t, Accept(), Accept())
	h.runner = &fakeRunner{results: map[string]fakeRun{
		"make build": {res: runner.Result{Stderr: "boom", ExitCode: 2}, err: &runner.ExitError{Code: 2}},
	}}

	p := newPlan(
		Step{Kind: KindRunCommand, Target: "make build"},
		Step{Kind: KindRunCommand, Target: "ls"},
	)
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSucceeded}, outcomes(p))
	assert.Contains(t, p.Results[0].Detail, "exit code 2")
	assert.Contains(t, p.Results[0].Detail, "boom")
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestRun_HaltOnFailure(t *testing.T) {
	h := newHarness(t, Accept(), Accept())
	h.cfg.ContinueOnFailure = false
	h.runner = &fakeRunner{results: map[string]fakeRun{
		"make build": {res: runner.Result{ExitCode: 1}, err: &runner.ExitError{Code: 1}},
	}}

	p := newPlan(
		Step{Kind: KindRunCommand, Target: "make build"},
		Step{Kind: KindRunCommand, Target: "ls"},
	)
	err := h.executor().Run(context.Background(), p)
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, StatusInProgress, p.Status)
	assert.Len(t, p.Results, 1)
	assert.Equal(t, StatusInProgress, h.store.last().Status)
}

func TestRun_Timeout(t *testing.T) {
	h := newHarness(t, Accept())
	h.cfg.CommandTimeout = 2 * time.Second
	h.runner = &fakeRunner{results: map[string]fakeRun{
		"make slow": {res: runner.Result{TimedOut: true}, err: runner.ErrTimeout},
	}}

	p := newPlan(Step{Kind: KindRunCommand, Target: "make slow"})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed}, outcomes(p))
	assert.Contains(t, p.Results[0].Detail, "timed out after 2s")
}

func TestRun_VerifyOutput(t *testing.T) {
	h := newHarness(t, Accept(), Accept())
	h.runner = &fakeRunner{results: map[string]fakeRun{
		"echo hello": {res: runner.Result{Stdout: "hello\n"}},
		"echo bye":   {res: runner.Result{Stdout: "bye\n"}},
	}}

	p := newPlan(
		Step{Kind: KindVerifyOutput, Target: "echo hello", Content: str(" hello ")},
		Step{Kind: KindVerifyOutput, Target: "echo bye", Content: str("hello")},
	)
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeFailed}, outcomes(p))
	assert.Contains(t, p.Results[1].Detail, "output mismatch")
}

func TestRun_CancelAbortsAndReopen(t *testing.T) {
	h := newHarness(t, Accept(), Cancel())
	p := newPlan(
		Step{Kind: KindCreateFile, Target: "a.txt", Content: str("1")},
		Step{Kind: KindCreateFile, Target: "b.txt", Content: str("2")},
	)

	err := h.executor().Run(context.Background(), p)
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StatusAborted, p.Status)
	assert.Equal(t, StatusAborted, h.store.last().Status)
	assert.Len(t, p.Results, 1)

	// Aborted plans stay put until reopened.
	h.confirmer = script(Accept())
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Empty(t, h.confirmer.prompts)

	require.NoError(t, p.Reopen())
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "2", h.read(t, "b.txt"))
	assert.Len(t, h.confirmer.prompts, 1)
}

func TestRun_ContextCancelledAborts(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt"})
	err := h.executor().Run(ctx, p)
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StatusAborted, p.Status)
	assert.Empty(t, h.confirmer.prompts)
}

func TestRun_SaveFailureReturned(t *testing.T) {
	h := newHarness(t, Accept())
	h.store.fail = errors.New("disk gone")
	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt"})

	err := h.executor().Run(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestRun_CreateExistingPromptsOverwrite(t *testing.T) {
	h := newHarness(t, Accept())
	require.NoError(t, os.WriteFile(h.path("a.txt"), []byte("old"), 0o644))

	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt", Content: str("new")})
	require.NoError(t, h.executor().Run(context.Background(), p))

	require.Len(t, h.confirmer.prompts, 1)
	assert.Equal(t, PromptOverwrite, h.confirmer.prompts[0].Kind)
	assert.NotNil(t, h.confirmer.prompts[0].Preview)
	assert.Equal(t, "new", h.read(t, "a.txt"))
	assert.Equal(t, "old", h.read(t, "a.txt.bak"))
}

func TestRun_WriteFileShowsDiff(t *testing.T) {
	h := newHarness(t, Accept())
	require.NoError(t, os.WriteFile(h.path("a.txt"), []byte("one\ntwo\n"), 0o644))

	p := newPlan(Step{Kind: KindWriteFile, Target: "a.txt", Content: str("one\n2\n")})
	require.NoError(t, h.executor().Run(context.Background(), p))

	pr := h.confirmer.prompts[0]
	assert.Equal(t, PromptFileChange, pr.Kind)
	assert.Contains(t, pr.Preview.Unified(), "-two")
	assert.Contains(t, pr.Preview.Unified(), "+2")
	assert.Equal(t, "one\n2\n", h.read(t, "a.txt"))
}

func TestRun_BackupExistsFails(t *testing.T) {
	h := newHarness(t, Accept())
	require.NoError(t, os.WriteFile(h.path("a.txt"), []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(h.path("a.txt.bak"), []byte("v0"), 0o644))

	p := newPlan(Step{Kind: KindWriteFile, Target: "a.txt", Content: str("v2")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed}, outcomes(p))
	assert.Contains(t, p.Results[0].Detail, "backup already exists")
	assert.Equal(t, "v1", h.read(t, "a.txt"))
}

func TestRun_EditPattern(t *testing.T) {
	h := newHarness(t, Accept())
	require.NoError(t, os.WriteFile(h.path("a.py"), []byte("print('Hello')\n"), 0o644))

	p := newPlan(Step{Kind: KindEditFile, Target: "a.py", Pattern: str("Hello"), Content: str("Hello World")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, "print('Hello World')\n", h.read(t, "a.py"))
}

func TestRun_EditPatternOnMissingFileFails(t *testing.T) {
	h := newHarness(t)
	p := newPlan(Step{Kind: KindEditFile, Target: "nope.py", Pattern: str("x"), Content: str("y")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed}, outcomes(p))
	assert.Empty(t, h.confirmer.prompts)
}

func TestRun_EditPatternNotFoundFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.path("a.py"), []byte("x = 1\n"), 0o644))
	p := newPlan(Step{Kind: KindEditFile, Target: "a.py", Pattern: str("y = 2"), Content: str("y = 3")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed}, outcomes(p))
	assert.Contains(t, p.Results[0].Detail, "not found")
	assert.Empty(t, h.confirmer.prompts)
}

func TestRun_EditMissingRedirectsToCreate(t *testing.T) {
	h := newHarness(t, Redirect())
	p := newPlan(Step{Kind: KindEditFile, Target: "new.py", Content: str("print(1)\n")})
	require.NoError(t, h.executor().Run(context.Background(), p))

	require.Len(t, h.confirmer.prompts, 1)
	assert.Equal(t, PromptEditMissing, h.confirmer.prompts[0].Kind)
	assert.True(t, h.confirmer.prompts[0].AllowRedirect)
	assert.Equal(t, []Outcome{OutcomeSucceeded}, outcomes(p))
	assert.Contains(t, p.Results[0].Detail, "redirected")
	assert.Equal(t, "print(1)\n", h.read(t, "new.py"))
}

func TestRun_EditMissingWithoutRedirect(t *testing.T) {
	h := newHarness(t)
	h.cfg.EditRedirectsToCreate = false
	p := newPlan(Step{Kind: KindEditFile, Target: "new.py", Content: str("x")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.Equal(t, []Outcome{OutcomeFailed}, outcomes(p))
	assert.NoFileExists(t, h.path("new.py"))
}

func TestRun_AssistedEdit(t *testing.T) {
	h := newHarness(t, Accept())
	h.assistant = &fakeAssistant{replies: []string{"```python\nx = 10\ny = 2\n```"}}
	require.NoError(t, os.WriteFile(h.path("a.py"), []byte("x = 1\ny = 2\n"), 0o644))

	p := newPlan(Step{Kind: KindEditFile, Target: "a.py", Pattern: str("x=1"), Content: str("x = 10")})
	require.NoError(t, h.executor().Run(context.Background(), p))

	require.Len(t, h.confirmer.prompts, 1)
	assert.Equal(t, PromptAssistedEdit, h.confirmer.prompts[0].Kind)
	assert.Equal(t, []Outcome{OutcomeSucceeded}, outcomes(p))
	assert.Equal(t, "x = 10\ny = 2\n", h.read(t, "a.py"))
}

func TestRun_SensitiveTargetFlagged(t *testing.T) {
	h := newHarness(t, Skip())
	p := newPlan(Step{Kind: KindCreateFile, Target: ".env", Content: str("KEY=1")})
	require.NoError(t, h.executor().Run(context.Background(), p))
	assert.True(t, h.confirmer.prompts[0].Sensitive)
}

func TestRun_PersistsAfterEveryStep(t *testing.T) {
	h := newHarness(t, Accept(), Accept())
	p := newPlan(
		Step{Kind: KindCreateFile, Target: "a.txt"},
		Step{Kind: KindCreateFile, Target: "b.txt"},
	)
	require.NoError(t, h.executor().Run(context.Background(), p))

	// start, two steps, completion
	require.Len(t, h.store.saves, 4)
	assert.Equal(t, StatusInProgress, h.store.saves[0].Status)
	assert.Len(t, h.store.saves[1].Results, 1)
	assert.Len(t, h.store.saves[2].Results, 2)
	assert.Equal(t, StatusCompleted, h.store.saves[3].Status)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.UpdatedAt.After(p.CreatedAt))
}

func TestRun_OnStepEvents(t *testing.T) {
	h := newHarness(t, Accept())
	ex := h.executor()
	var events []StepEvent
	ex.OnStep = func(ev StepEvent) { events = append(events, ev) }

	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt"})
	require.NoError(t, ex.Run(context.Background(), p))

	require.Len(t, events, 2)
	assert.Nil(t, events[0].Result)
	require.NotNil(t, events[1].Result)
	assert.Equal(t, OutcomeSucceeded, events[1].Result.Outcome)
	assert.Equal(t, 1, events[1].Total)
}

func TestResume(t *testing.T) {
	h := newHarness(t, Accept())
	store := NewFileStore(filepath.Join(h.dir, "plans"))

	p := newPlan(
		Step{Kind: KindCreateFile, Target: "a.txt", Content: str("1")},
		Step{Kind: KindCreateFile, Target: "b.txt", Content: str("2")},
	)
	p.Stamp(time.Now())
	p.Status = StatusInProgress
	p.Results = []StepResult{{StepIndex: 0, Outcome: OutcomeSucceeded, Detail: "done", Timestamp: time.Now()}}
	require.NoError(t, store.Save(p))

	ex := h.executor()
	ex.deps.Store = store
	resumed, err := ex.Resume(context.Background(), store.Path(p.ID))
	require.NoError(t, err)

	require.Len(t, h.confirmer.prompts, 1)
	assert.Equal(t, 1, h.confirmer.prompts[0].Step.Index)
	assert.Equal(t, StatusCompleted, resumed.Status)
	assert.NoFileExists(t, h.path("a.txt"))
	assert.Equal(t, "2", h.read(t, "b.txt"))
}

func TestResume_FinishedPlanUnchanged(t *testing.T) {
	h := newHarness(t)
	store := NewFileStore(filepath.Join(h.dir, "plans"))
	p := newPlan(Step{Kind: KindCreateFile, Target: "a.txt"})
	p.Stamp(time.Now())
	p.Status = StatusAborted
	require.NoError(t, store.Save(p))

	resumed, err := h.executor().Resume(context.Background(), store.Path(p.ID))
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, resumed.Status)
	assert.Empty(t, h.confirmer.prompts)
}
