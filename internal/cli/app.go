// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Collaborator wiring shared by the commands and the REPL.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ctxmention "github.com/Legorobotdude/PrivateCode/internal/context"
	"github.com/Legorobotdude/PrivateCode/internal/config"
	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/ollama"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/runner"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
	"github.com/Legorobotdude/PrivateCode/internal/search"
	"github.com/Legorobotdude/PrivateCode/internal/store"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// maxReferenceSize bounds a file pulled in through a [path] reference.
const maxReferenceSize = 2 << 20

// maxStepOutputLines bounds command output echoed after a step.
const maxStepOutputLines = 20

// Streams are the terminal endpoints an App talks to.
type Streams struct {
	In  LineReader
	Out io.Writer
	Err io.Writer

	// Interactive enables spinners.
	Interactive bool
}

// App holds the collaborators built from one configuration. A config
// reload builds a new App.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	streams Streams
	render  *Renderer
	workdir string

	client     *ollama.Client
	web        *search.Client
	classifier *safety.Classifier
	files      *fileops.Engine
	runner     *runner.Runner
	expander   *ctxmention.Expander

	indexOnce sync.Once
	index     *store.Index
	indexErr  error
}

// NewApp builds the collaborators for cfg.
func NewApp(cfg *config.Config, streams Streams, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	if streams.Err == nil {
		streams.Err = os.Stderr
	}
	if streams.In == nil {
		streams.In = NewLineReader(os.Stdin, streams.Out)
	}

	workdir := cfg.Execution.WorkingDir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workdir = wd
	}
	workdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("invalid working directory: %w", err)
	}
	if info, err := os.Stat(workdir); err != nil || !info.IsDir() {
		return nil, &config.ValidationError{Field: "execution.working_dir", Message: "not a directory: " + workdir}
	}

	a := &App{
		cfg:     cfg,
		log:     logger,
		streams: streams,
		render:  NewRenderer(ColorsEnabled(cfg.Display.Color), cfg.Display.Markdown, GetTerminalWidth()),
		workdir: workdir,
	}

	a.client = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:       cfg.Model.OllamaURL,
		Timeout:       cfg.ModelTimeout(),
		DefaultModel:  cfg.Model.Name,
		AllowFallback: cfg.Model.AllowFallback,
		Options:       ollama.DefaultOptions(),
		OnFallback: func(requested, used string) {
			fmt.Fprintf(a.streams.Err, "%s model %q is not installed; using %q\n",
				WarningStyle.Render("[WARN]"), requested, used)
		},
		Logger: logger.With("component", "ollama"),
	})

	webCfg := search.DefaultConfig()
	webCfg.MaxResults = cfg.Web.MaxResults
	webCfg.MaxContentLength = cfg.Web.MaxContentLength
	webCfg.RequestsPerSecond = cfg.Web.RequestsPerSecond
	if cfg.Web.UserAgent != "" {
		webCfg.UserAgent = cfg.Web.UserAgent
	}
	webCfg.Logger = logger.With("component", "web")
	a.web = search.New(webCfg)

	a.classifier = safety.NewClassifier(
		safety.DefaultRules().With(cfg.Safety.ExtraAllow, cfg.Safety.ExtraDeny),
		logger.With("component", "safety"),
	)

	a.files = fileops.New()
	a.files.BackupSuffix = cfg.Files.BackupSuffix
	a.files.Root = workdir

	a.runner = &runner.Runner{
		Shell:  cfg.Execution.Shell,
		Dir:    workdir,
		Logger: logger.With("component", "runner"),
	}

	a.expander = ctxmention.NewExpander(
		ctxmention.Resolver{WorkingDir: workdir, MaxFileSize: maxReferenceSize},
		a.web,
		logger.With("component", "context"),
	)
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Client returns the model client.
func (a *App) Client() *ollama.Client { return a.client }

// WorkDir returns the absolute working directory.
func (a *App) WorkDir() string { return a.workdir }

// Index opens the run index on first use.
func (a *App) Index() (*store.Index, error) {
	a.indexOnce.Do(func() {
		a.index, a.indexErr = store.Open(a.cfg.StateDir, a.log.With("component", "store"))
	})
	return a.index, a.indexErr
}

// Close releases the run index if it was opened.
func (a *App) Close() error {
	if a.index != nil {
		return a.index.Close()
	}
	return nil
}

// =============================================================================
// MODEL ADAPTER
// =============================================================================

// modelAssistant lets the plan package talk to Ollama.
type modelAssistant struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

func (m modelAssistant) Complete(ctx context.Context, messages []plan.Message) (string, error) {
	conv := make([]ollama.Message, len(messages))
	for i, msg := range messages {
		conv[i] = ollama.Message{Role: msg.Role, Content: msg.Content}
	}
	return m.client.Complete(ctx, conv, m.model, m.timeout)
}

func (a *App) assistant(model string) plan.Assistant {
	return modelAssistant{client: a.client, model: model, timeout: a.cfg.ModelTimeout()}
}

// =============================================================================
// EXECUTOR
// =============================================================================

func (a *App) execConfig() plan.ExecConfig {
	return plan.ExecConfig{
		CommandTimeout:        a.cfg.CommandTimeout(),
		LLMTimeout:            a.cfg.ModelTimeout(),
		DangerousToken:        a.cfg.Execution.DangerousToken,
		ContinueOnFailure:     a.cfg.Execution.ContinueOnFailure,
		EditRedirectsToCreate: a.cfg.Execution.EditRedirectsToCreate,
		PlanDir:               a.cfg.PlansDir(),
		Shell:                 a.cfg.Execution.Shell,
	}
}

// executor builds an executor that confirms on the terminal. st may be nil
// for one-off steps that are not recorded.
func (a *App) executor(st plan.Store, model string) *plan.Executor {
	deps := plan.Deps{
		Confirmer:  NewTerminalConfirmer(a.streams.In, a.streams.Out, a.render),
		Runner:     a.runner,
		Files:      a.files,
		Classifier: a.classifier,
		Store:      st,
		Logger:     a.log.With("component", "executor"),
	}
	if a.cfg.Execution.AssistedEdits {
		deps.Assistant = a.assistant(model)
	}
	ex := plan.NewExecutor(a.execConfig(), deps)
	ex.OnStep = a.showStep
	return ex
}

func (a *App) showStep(ev plan.StepEvent) {
	out := a.streams.Out
	if ev.Result == nil {
		fmt.Fprintf(out, "\n%s %s\n",
			SectionStyle.Render(fmt.Sprintf("Step %d/%d", ev.Step.Index+1, ev.Total)),
			ValueStyle.Render(ev.Step.Summary()))
		if ev.Step.Rationale != "" {
			fmt.Fprintf(out, "  %s\n", DimStyle.Render(ev.Step.Rationale))
		}
		return
	}

	first, rest, _ := strings.Cut(strings.TrimRight(ev.Result.Detail, "\n"), "\n")
	fmt.Fprintf(out, "%s %s\n", OutcomeBadge(ev.Result.Outcome), first)
	if rest != "" && ev.Step.Kind.IsCommand() {
		for _, line := range strings.Split(limitLines(rest, maxStepOutputLines), "\n") {
			if line != "" {
				fmt.Fprintf(out, "  %s\n", DimStyle.Render(line))
			}
		}
	}
}

// =============================================================================
// PLAN FLOW
// =============================================================================

// runPlanFlow generates a plan for request, shows it and, once the user
// agrees, executes it with every step recorded in the run index.
func (a *App) runPlanFlow(ctx context.Context, request, model string, showThinking bool, thinkingMax int) error {
	out := a.streams.Out

	x := a.expander.Expand(ctx, request)
	a.showWarnings(x.Warnings)
	if strings.TrimSpace(x.Query) == "" {
		return &UsageError{Message: "empty plan request", Example: "privatecode plan add a --verbose flag to [main.go]"}
	}

	gen := plan.NewGenerator(a.assistant(model), model, a.cfg.ModelTimeout(), a.log.With("component", "planner"))
	var p *plan.Plan
	err := withSpinner(a.streams.Err, a.streams.Interactive, "Analyzing request...", func(set func(string)) error {
		gen.OnPhase = func(phase string) {
			switch phase {
			case "analysis":
				set("Analyzing request...")
			case "planning":
				set("Planning steps...")
			case "retry":
				set("Plan was malformed, asking again...")
			}
		}
		var gerr error
		p, gerr = gen.Generate(ctx, x.Query, x.ContextBlock())
		return gerr
	})
	if err != nil {
		return err
	}

	if analysis := strings.TrimSpace(ollama.ProcessThinking(p.Analysis, showThinking, thinkingMax)); analysis != "" {
		fmt.Fprintln(out, TitleStyle.Render("Analysis"))
		fmt.Fprintln(out, a.render.Markdown(analysis))
	}
	fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Plan %s (%d steps)", p.ID, len(p.Steps))))
	fmt.Fprint(out, a.render.PlanTable(p))

	idx, err := a.Index()
	if err != nil {
		return err
	}

	answer, err := a.streams.In.Prompt(PromptStyle.Render("Execute this plan?") + " " + DimStyle.Render("[y/N]") + " ")
	if err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		answer = ""
	}
	if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
		if err := idx.Save(p); err != nil {
			return err
		}
		fmt.Fprintf(out, "Plan saved as draft. Run it later with: %s\n", CommandStyle.Render("privatecode resume "+p.ID))
		return nil
	}

	return a.executePlan(ctx, idx, p, model)
}

// executePlan runs p against the index and reports how it ended.
func (a *App) executePlan(ctx context.Context, idx *store.Index, p *plan.Plan, model string) error {
	out := a.streams.Out
	if model == "" {
		model = p.Model
	}
	err := a.executor(idx, model).Run(ctx, p)

	fmt.Fprintln(out)
	fmt.Fprintln(out, a.render.PlanSummary(p))
	switch {
	case errors.Is(err, plan.ErrAborted):
		fmt.Fprintf(out, "Plan aborted. Continue it with: %s\n", CommandStyle.Render("privatecode resume --reopen "+p.ID))
	case errors.Is(err, plan.ErrHalted):
		fmt.Fprintf(out, "Stopped after a failed step. Continue with: %s\n", CommandStyle.Render("privatecode resume "+p.ID))
	}
	return err
}

// runSteps executes one-off steps without recording them.
func (a *App) runSteps(ctx context.Context, description, model string, steps ...plan.Step) (*plan.Plan, error) {
	for i := range steps {
		steps[i].Index = i
	}
	p := &plan.Plan{Description: description, Model: model, Steps: steps}
	p.Stamp(time.Now())
	err := a.executor(nil, model).Run(ctx, p)
	return p, err
}

func (a *App) showWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(a.streams.Err, "%s %s\n", WarningStyle.Render("[WARN]"), w)
	}
}

// thinkingOrDefault returns n, or the configured length when n is unset.
func (a *App) thinkingOrDefault(n int) int {
	if n > 0 {
		return n
	}
	if a.cfg.Display.ThinkingMaxLength > 0 {
		return a.cfg.Display.ThinkingMaxLength
	}
	return ollama.DefaultThinkingMaxLength
}

// stepOutput trims a step detail to its command output.
func stepOutput(detail string) string {
	_, rest, _ := strings.Cut(detail, "\n")
	return util.TruncateRunes(rest, 4000)
}
