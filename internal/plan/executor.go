// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/runner"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// DefaultDangerousToken must be typed verbatim to run a dangerous command.
const DefaultDangerousToken = "yes, run it"

// maxDetail bounds the command output kept in a step result.
const maxDetail = 4000

var (
	// ErrAborted is returned by Run when the user cancels the plan.
	ErrAborted = errors.New("plan aborted by user")

	// ErrHalted is returned by Run when a step fails and
	// ContinueOnFailure is off. The plan stays in progress.
	ErrHalted = errors.New("plan halted after failed step")
)

// errCancelled is the internal signal for a Cancel decision.
var errCancelled = errors.New("cancelled")

// =============================================================================
// CONFIGURATION
// =============================================================================

// ExecConfig is fixed for the lifetime of an Executor. A config reload
// builds a new value and a new executor. PlanDir and Shell describe where
// the store and runner collaborators were set up; the executor reports them
// but never changes them.
type ExecConfig struct {
	CommandTimeout        time.Duration
	LLMTimeout            time.Duration
	DangerousToken        string
	ContinueOnFailure     bool
	EditRedirectsToCreate bool
	PlanDir               string
	Shell                 []string
}

// DefaultExecConfig returns the defaults.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		CommandTimeout:        runner.DefaultTimeout,
		LLMTimeout:            120 * time.Second,
		DangerousToken:        DefaultDangerousToken,
		ContinueOnFailure:     true,
		EditRedirectsToCreate: true,
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Confirmer asks the user what to do with a step.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (Decision, error)
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (runner.Result, error)
}

// Files is the subset of the mutation engine the executor uses.
type Files interface {
	Exists(path string) (bool, error)
	Read(path string) (string, error)
	Preview(path, content string) (*fileops.Record, error)
	PreviewEdit(path, pattern, replacement string) (*fileops.Record, error)
	Create(path, content string, overwrite bool) (*fileops.Record, error)
	Apply(path, content string) (*fileops.Record, error)
	Edit(path, pattern, replacement string) (*fileops.Record, error)
}

// Classifier rates commands.
type Classifier interface {
	Classify(command string) safety.Classification
}

// Deps are the executor's collaborators. Assistant, Now and Logger are
// optional.
type Deps struct {
	Confirmer  Confirmer
	Runner     CommandRunner
	Files      Files
	Classifier Classifier
	Store      Store

	// Assistant, when set, is offered as a fallback for edit_file steps
	// whose pattern no longer matches the file.
	Assistant Assistant

	Now    func() time.Time
	Logger *slog.Logger
}

// =============================================================================
// PROMPTS AND DECISIONS
// =============================================================================

// PromptKind says what the user is being asked.
type PromptKind int

const (
	// PromptCommand - run a shell command
	PromptCommand PromptKind = iota

	// PromptFileChange - apply a previewed file change
	PromptFileChange

	// PromptOverwrite - create_file target already exists
	PromptOverwrite

	// PromptEditMissing - edit_file target does not exist; redirect to create
	PromptEditMissing

	// PromptAssistedEdit - apply a model-proposed edit after a pattern miss
	PromptAssistedEdit
)

// Prompt carries everything a confirmer needs to render a question.
type Prompt struct {
	Kind     PromptKind
	PlanID   string
	Step     Step
	Total    int
	Question string

	// Command steps
	Command        string
	Classification safety.Classification

	// RequireToken is non-empty when the answer must be this exact text.
	RequireToken string

	// File steps
	Preview   *fileops.Record
	Sensitive bool

	// AllowRedirect offers DecisionRedirect.
	AllowRedirect bool
}

// DecisionKind is the user's answer.
type DecisionKind int

const (
	// DecisionSkip is the zero value so that anything unrecognised declines.
	DecisionSkip DecisionKind = iota
	DecisionAccept
	DecisionRedirect
	DecisionCancel
)

// String returns the decision name.
func (k DecisionKind) String() string {
	switch k {
	case DecisionAccept:
		return "accept"
	case DecisionRedirect:
		return "redirect"
	case DecisionCancel:
		return "cancel"
	default:
		return "skip"
	}
}

// Decision is a confirmer's answer. Token holds the typed text for
// prompts that require one.
type Decision struct {
	Kind  DecisionKind
	Token string
}

// Accept, Skip, Redirect and Cancel build the plain decisions.
func Accept() Decision   { return Decision{Kind: DecisionAccept} }
func Skip() Decision     { return Decision{Kind: DecisionSkip} }
func Redirect() Decision { return Decision{Kind: DecisionRedirect} }
func Cancel() Decision   { return Decision{Kind: DecisionCancel} }

// Confirm accepts with the typed token.
func Confirm(token string) Decision {
	return Decision{Kind: DecisionAccept, Token: token}
}

// =============================================================================
// PROGRESS
// =============================================================================

// StepEvent is delivered to OnStep before a step is attempted (Result nil)
// and after its result is recorded.
type StepEvent struct {
	PlanID string
	Step   Step
	Total  int
	Result *StepResult
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs plans step by step.
type Executor struct {
	cfg  ExecConfig
	deps Deps
	log  *slog.Logger

	// OnStep, if set, observes progress.
	OnStep func(StepEvent)
}

// NewExecutor creates an executor. Zero timeouts and an empty dangerous
// token are replaced by defaults.
func NewExecutor(cfg ExecConfig, deps Deps) *Executor {
	def := DefaultExecConfig()
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = def.LLMTimeout
	}
	if strings.TrimSpace(cfg.DangerousToken) == "" {
		cfg.DangerousToken = def.DangerousToken
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Store == nil {
		deps.Store = nopStore{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, deps: deps, log: logger}
}

// Config returns the executor's configuration.
func (e *Executor) Config() ExecConfig {
	return e.cfg
}

type nopStore struct{}

func (nopStore) Save(*Plan) error { return nil }

// Run executes every step of p that has no terminal result yet. It returns
// nil when the plan completes, ErrAborted on cancel, ErrHalted when a
// failure stops the run, or the error that kept a result from being saved.
func (e *Executor) Run(ctx context.Context, p *Plan) error {
	if p.IsFinished() {
		e.log.Info("plan already finished", "plan", p.ID, "status", p.Status)
		return nil
	}
	if len(p.Steps) == 0 {
		return malformed(-1, "plan has no steps")
	}

	now := e.deps.Now()
	p.Stamp(now)
	log := e.log.With("plan", p.ID)

	if p.Status == StatusDraft {
		p.Status = StatusInProgress
		if err := e.save(p); err != nil {
			return err
		}
		log.Info("plan started", "steps", len(p.Steps))
	}

	for i := range p.Steps {
		if p.Done(i) {
			continue
		}
		step := p.Steps[i]

		if ctx.Err() != nil {
			return e.abort(p, "interrupted")
		}

		e.notify(p, step, nil)
		outcome, detail, err := e.runStep(ctx, p, step)
		if errors.Is(err, errCancelled) {
			return e.abort(p, "cancelled at step "+fmt.Sprint(i))
		}
		if err != nil {
			log.Warn("step could not be attempted", "step", i, "error", err)
			return err
		}

		result := StepResult{
			StepIndex: i,
			Outcome:   outcome,
			Detail:    detail,
			Timestamp: e.deps.Now(),
		}
		p.Results = append(p.Results, result)
		if err := e.save(p); err != nil {
			return err
		}
		log.Info("step finished", "step", i, "kind", step.Kind, "outcome", outcome)
		e.notify(p, step, &result)

		// A command killed by Ctrl-C is recorded, then the plan stops.
		if ctx.Err() != nil {
			return e.abort(p, "interrupted")
		}
		if outcome == OutcomeFailed && !e.cfg.ContinueOnFailure {
			log.Info("halting after failure", "step", i)
			return fmt.Errorf("%w: step %d", ErrHalted, i)
		}
	}

	p.Status = StatusCompleted
	if err := e.save(p); err != nil {
		return err
	}
	s, f, k, _ := p.Counts()
	log.Info("plan completed", "succeeded", s, "failed", f, "skipped", k)
	return nil
}

// Resume loads the plan at path and continues it. Completed and aborted
// plans are returned without running anything.
func (e *Executor) Resume(ctx context.Context, path string) (*Plan, error) {
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if p.IsFinished() {
		return p, nil
	}
	return p, e.Run(ctx, p)
}

func (e *Executor) abort(p *Plan, reason string) error {
	p.Status = StatusAborted
	if err := e.save(p); err != nil {
		return err
	}
	e.log.Info("plan aborted", "plan", p.ID, "reason", reason)
	return ErrAborted
}

func (e *Executor) save(p *Plan) error {
	p.UpdatedAt = e.deps.Now()
	if err := e.deps.Store.Save(p); err != nil {
		return fmt.Errorf("persist plan: %w", err)
	}
	return nil
}

func (e *Executor) notify(p *Plan, step Step, result *StepResult) {
	if e.OnStep != nil {
		e.OnStep(StepEvent{PlanID: p.ID, Step: step, Total: len(p.Steps), Result: result})
	}
}

// ask wraps the confirmer. An interrupted prompt counts as a cancel.
func (e *Executor) ask(ctx context.Context, p Prompt) (Decision, error) {
	d, err := e.deps.Confirmer.Confirm(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return Cancel(), nil
		}
		return Decision{}, fmt.Errorf("confirm step %d: %w", p.Step.Index, err)
	}
	return d, nil
}

func (e *Executor) prompt(p *Plan, step Step, kind PromptKind, question string) Prompt {
	return Prompt{
		Kind:     kind,
		PlanID:   p.ID,
		Step:     step,
		Total:    len(p.Steps),
		Question: question,
	}
}

func (e *Executor) runStep(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	if step.Kind.IsCommand() {
		return e.runCommand(ctx, p, step)
	}
	switch step.Kind {
	case KindCreateFile:
		return e.createFile(ctx, p, step)
	case KindWriteFile:
		return e.writeFile(ctx, p, step)
	case KindEditFile:
		return e.editFile(ctx, p, step)
	}
	return OutcomeFailed, "unknown step kind " + string(step.Kind), nil
}

// =============================================================================
// COMMAND STEPS
// =============================================================================

func (e *Executor) runCommand(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	cls := e.deps.Classifier.Classify(step.Target)
	e.log.Debug("command classified", "step", step.Index, "tier", cls.Tier, "rule", cls.MatchedRule)

	pr := e.prompt(p, step, PromptCommand, "Run this command?")
	pr.Command = step.Target
	pr.Classification = cls
	if cls.IsDangerous() {
		pr.RequireToken = e.cfg.DangerousToken
		pr.Question = fmt.Sprintf("Type %q to run this dangerous command", e.cfg.DangerousToken)
	}

	d, err := e.ask(ctx, pr)
	if err != nil {
		return "", "", err
	}
	switch d.Kind {
	case DecisionCancel:
		return "", "", errCancelled
	case DecisionAccept:
		if cls.IsDangerous() && d.Token != e.cfg.DangerousToken {
			return OutcomeSkipped, "declined: dangerous command not confirmed (" + cls.MatchedRule + ")", nil
		}
	default:
		return OutcomeSkipped, "skipped by user", nil
	}

	res, err := e.deps.Runner.Run(ctx, step.Target, e.cfg.CommandTimeout)
	output := util.TruncateRunes(res.Combined(), maxDetail)

	var exitErr *runner.ExitError
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return OutcomeFailed, fmt.Sprintf("timed out after %s\n%s", runner.FormatDuration(e.cfg.CommandTimeout), output), nil
	case errors.As(err, &exitErr):
		return OutcomeFailed, fmt.Sprintf("exit code %d\n%s", exitErr.Code, output), nil
	case err != nil && ctx.Err() != nil:
		return OutcomeFailed, "interrupted\n" + output, nil
	case err != nil:
		return OutcomeFailed, "could not run command: " + err.Error(), nil
	}

	if step.Kind == KindVerifyOutput {
		want := strings.TrimSpace(step.Text())
		got := strings.TrimSpace(res.Stdout)
		if got != want {
			return OutcomeFailed, fmt.Sprintf("output mismatch: expected %q, got %q", want, util.TruncateRunes(got, maxDetail)), nil
		}
		return OutcomeSucceeded, "output matched", nil
	}
	return OutcomeSucceeded, "exit code 0\n" + output, nil
}

// =============================================================================
// FILE STEPS
// =============================================================================

func (e *Executor) filePrompt(p *Plan, step Step, kind PromptKind, question string, preview *fileops.Record) Prompt {
	pr := e.prompt(p, step, kind, question)
	pr.Preview = preview
	pr.Sensitive = fileops.IsSensitive(step.Target)
	return pr
}

// confirmFile asks and maps the answer: accepted, or a terminal outcome.
func (e *Executor) confirmFile(ctx context.Context, pr Prompt) (DecisionKind, Outcome, string, error) {
	d, err := e.ask(ctx, pr)
	if err != nil {
		return 0, "", "", err
	}
	switch d.Kind {
	case DecisionCancel:
		return 0, "", "", errCancelled
	case DecisionAccept:
		return DecisionAccept, "", "", nil
	case DecisionRedirect:
		if pr.AllowRedirect {
			return DecisionRedirect, "", "", nil
		}
	}
	return DecisionSkip, OutcomeSkipped, "skipped by user", nil
}

func mutationFailed(err error) (Outcome, string, error) {
	return OutcomeFailed, err.Error(), nil
}

func (e *Executor) createFile(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	exists, err := e.deps.Files.Exists(step.Target)
	if err != nil {
		return mutationFailed(err)
	}
	preview, err := e.deps.Files.Preview(step.Target, step.Text())
	if err != nil {
		return mutationFailed(err)
	}

	kind, question := PromptFileChange, "Create this file?"
	if exists {
		kind, question = PromptOverwrite, "File already exists. Overwrite it?"
	}
	d, outcome, detail, err := e.confirmFile(ctx, e.filePrompt(p, step, kind, question, preview))
	if err != nil || d != DecisionAccept {
		return outcome, detail, err
	}

	rec, err := e.deps.Files.Create(step.Target, step.Text(), exists)
	if err != nil {
		return mutationFailed(err)
	}
	return OutcomeSucceeded, rec.Summary(), nil
}

func (e *Executor) writeFile(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	preview, err := e.deps.Files.Preview(step.Target, step.Text())
	if err != nil {
		return mutationFailed(err)
	}
	d, outcome, detail, err := e.confirmFile(ctx, e.filePrompt(p, step, PromptFileChange, "Apply these changes?", preview))
	if err != nil || d != DecisionAccept {
		return outcome, detail, err
	}
	rec, err := e.deps.Files.Apply(step.Target, step.Text())
	if err != nil {
		return mutationFailed(err)
	}
	return OutcomeSucceeded, rec.Summary(), nil
}

func (e *Executor) editFile(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	exists, err := e.deps.Files.Exists(step.Target)
	if err != nil {
		return mutationFailed(err)
	}
	if !exists {
		return e.editMissing(ctx, p, step)
	}
	if !step.HasPattern() {
		return e.writeFile(ctx, p, step)
	}

	preview, err := e.deps.Files.PreviewEdit(step.Target, *step.Pattern, step.Text())
	if errors.Is(err, fileops.ErrPatternNotFound) && e.deps.Assistant != nil {
		return e.assistedEdit(ctx, p, step)
	}
	if err != nil {
		return mutationFailed(err)
	}

	d, outcome, detail, err := e.confirmFile(ctx, e.filePrompt(p, step, PromptFileChange, "Apply these changes?", preview))
	if err != nil || d != DecisionAccept {
		return outcome, detail, err
	}
	rec, err := e.deps.Files.Edit(step.Target, *step.Pattern, step.Text())
	if err != nil {
		return mutationFailed(err)
	}
	return OutcomeSucceeded, rec.Summary(), nil
}

// editMissing handles edit_file on a file that does not exist. Without a
// pattern the content is a whole file, so creating it is offered instead.
func (e *Executor) editMissing(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	notFound := &fileops.Error{Kind: fileops.KindNotFound, Op: "edit", Path: step.Target}
	if step.HasPattern() || !e.cfg.EditRedirectsToCreate {
		return mutationFailed(notFound)
	}

	preview, err := e.deps.Files.Preview(step.Target, step.Text())
	if err != nil {
		return mutationFailed(err)
	}
	pr := e.filePrompt(p, step, PromptEditMissing, "File does not exist. Create it with this content instead?", preview)
	pr.AllowRedirect = true

	d, outcome, detail, err := e.confirmFile(ctx, pr)
	if err != nil {
		return "", "", err
	}
	if d == DecisionSkip {
		return outcome, detail, nil
	}
	rec, err := e.deps.Files.Create(step.Target, step.Text(), false)
	if err != nil {
		return mutationFailed(err)
	}
	return OutcomeSucceeded, "redirected edit to create: " + rec.Summary(), nil
}

// assistedEdit asks the model to apply an edit whose pattern no longer
// matches, then shows the proposal for confirmation like any other change.
func (e *Executor) assistedEdit(ctx context.Context, p *Plan, step Step) (Outcome, string, error) {
	miss := fmt.Sprintf("pattern not found in %s", step.Target)

	current, err := e.deps.Files.Read(step.Target)
	if err != nil {
		return mutationFailed(err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()
	reply, err := e.deps.Assistant.Complete(llmCtx, []Message{
		{Role: RoleUser, Content: assistedEditPrompt(step, current)},
	})
	if err != nil {
		e.log.Warn("assisted edit failed", "step", step.Index, "error", err)
		return OutcomeFailed, miss + "; model-assisted edit failed: " + err.Error(), nil
	}
	proposed, ok := ExtractFileContent(reply)
	if !ok || proposed == current {
		return OutcomeFailed, miss + "; model did not produce a usable edit", nil
	}

	preview, err := e.deps.Files.Preview(step.Target, proposed)
	if err != nil {
		return mutationFailed(err)
	}
	d, _, _, err := e.confirmFile(ctx, e.filePrompt(p, step, PromptAssistedEdit,
		"The text to replace was not found. Apply the model's edit instead?", preview))
	if err != nil {
		return "", "", err
	}
	if d != DecisionAccept {
		return OutcomeFailed, miss + "; model-assisted edit declined", nil
	}
	rec, err := e.deps.Files.Apply(step.Target, proposed)
	if err != nil {
		return mutationFailed(err)
	}
	return OutcomeSucceeded, "model-assisted edit: " + rec.Summary(), nil
}
