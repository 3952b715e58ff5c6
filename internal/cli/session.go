// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - REPL session state and request handlers.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ctxmention "github.com/Legorobotdude/PrivateCode/internal/context"
	"github.com/Legorobotdude/PrivateCode/internal/config"
	"github.com/Legorobotdude/PrivateCode/internal/fileops"
	"github.com/Legorobotdude/PrivateCode/internal/ollama"
	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/search"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// Session holds the state of one REPL conversation. History lives only
// in memory.
type Session struct {
	app     *App
	base    *config.Config
	streams Streams
	log     *slog.Logger

	// source, when set, is polled at each request boundary for a newer
	// configuration snapshot.
	source func() *config.Config

	history      []ollama.Message
	model        string
	workdir      string
	timeout      time.Duration
	showThinking bool
	thinkingMax  int
}

// NewSession starts a session on cfg. model and workdir, when non-empty,
// override the configuration for the whole session.
func NewSession(cfg *config.Config, streams Streams, model, workdir string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		base:         cfg,
		streams:      streams,
		log:          logger,
		model:        model,
		workdir:      workdir,
		showThinking: cfg.Display.ShowThinking,
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	s.thinkingMax = s.app.thinkingOrDefault(0)
	return s, nil
}

// Close releases the current App.
func (s *Session) Close() error {
	if s.app == nil {
		return nil
	}
	return s.app.Close()
}

// Model returns the model requests go to.
func (s *Session) Model() string {
	if s.model != "" {
		return s.model
	}
	return s.base.Model.Name
}

// rebuild makes a new App from the base config plus session overrides.
func (s *Session) rebuild() error {
	cfg := s.base.Clone()
	if s.workdir != "" {
		cfg.Execution.WorkingDir = s.workdir
	}
	if s.timeout > 0 {
		cfg.Model.TimeoutSecs = int(s.timeout / time.Second)
	}
	app, err := NewApp(cfg, s.streams, s.log)
	if err != nil {
		return err
	}
	if s.app != nil {
		if err := s.app.Close(); err != nil {
			s.log.Warn("closing run index", "error", err)
		}
	}
	s.app = app
	return nil
}

// refresh adopts a reloaded configuration, if any.
func (s *Session) refresh() {
	if s.source == nil {
		return
	}
	cfg := s.source()
	if cfg == nil || cfg == s.base {
		return
	}
	prev := s.base
	s.base = cfg
	if err := s.rebuild(); err != nil {
		s.base = prev
		fmt.Fprintf(s.streams.Err, "%s config reload ignored: %v\n", WarningStyle.Render("[WARN]"), err)
		return
	}
	fmt.Fprintln(s.streams.Out, DimStyle.Render("Configuration reloaded."))
}

func (s *Session) out() io.Writer { return s.streams.Out }

func (s *Session) note(format string, args ...any) {
	fmt.Fprintf(s.streams.Out, "%s %s\n", WarningStyle.Render("[!]"), fmt.Sprintf(format, args...))
}

func (s *Session) confirm(ctx context.Context, question string) bool {
	answer, err := s.streams.In.Prompt(PromptStyle.Render(question) + " " + DimStyle.Render("[y/N]") + " ")
	if err != nil || ctx.Err() != nil {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes"
}

// =============================================================================
// DISPATCH
// =============================================================================

// Handle processes one line of input. It reports whether the user asked
// to leave.
func (s *Session) Handle(ctx context.Context, line string) (bool, error) {
	s.refresh()

	kind, arg := ParseInput(line)
	switch kind {
	case InputExit:
		return true, nil
	case InputHelp:
		printHelp(s.out())
	case InputClear:
		s.history = nil
		fmt.Fprintln(s.out(), "Conversation cleared.")
	case InputHistory:
		s.printHistory()
	case InputModels:
		return false, listModels(ctx, s.app, s.out(), s.Model())
	case InputModel:
		if arg == "" || strings.EqualFold(arg, "list") {
			return false, listModels(ctx, s.app, s.out(), s.Model())
		}
		s.switchModel(ctx, arg)
	case InputThinking:
		return false, s.setThinking(arg)
	case InputThinkingLength:
		return false, s.setThinkingLength(arg)
	case InputTimeout:
		return false, s.setTimeout(arg)
	case InputCwd:
		return false, s.setWorkdir(arg)
	case InputSearch:
		return false, s.search(ctx, arg)
	case InputEdit:
		return false, s.edit(ctx, arg)
	case InputRun:
		return false, s.run(ctx, arg)
	case InputCreate:
		return false, s.create(ctx, arg)
	case InputPlan:
		return false, s.plan(ctx, arg)
	default:
		return false, s.chatInput(ctx, arg)
	}
	return false, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Session) setThinking(arg string) error {
	switch strings.ToLower(arg) {
	case "":
		state := "off"
		if s.showThinking {
			state = "on"
		}
		fmt.Fprintf(s.out(), "Thinking blocks are %s (max %d characters).\n", state, s.thinkingMax)
		return nil
	case "on", "true", "yes", "show":
		s.showThinking = true
	case "off", "false", "no", "hide":
		s.showThinking = false
	default:
		return &UsageError{Message: "thinking takes on or off", Example: "thinking on"}
	}
	if s.showThinking {
		fmt.Fprintln(s.out(), "Thinking blocks will be shown.")
	} else {
		fmt.Fprintln(s.out(), "Thinking blocks will be hidden.")
	}
	return nil
}

func (s *Session) setThinkingLength(arg string) error {
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(arg, ":")))
	if err != nil || n <= 0 {
		return &UsageError{Message: "thinking length must be a positive number of characters", Example: "thinking length 2000"}
	}
	s.thinkingMax = n
	fmt.Fprintf(s.out(), "Thinking blocks will be cut at %d characters.\n", n)
	return nil
}

func (s *Session) setTimeout(arg string) error {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 {
		return &UsageError{Message: "timeout must be a positive number of seconds", Example: "timeout 300"}
	}
	prev := s.timeout
	s.timeout = time.Duration(n) * time.Second
	if err := s.rebuild(); err != nil {
		s.timeout = prev
		return err
	}
	fmt.Fprintf(s.out(), "Model timeout set to %d seconds.\n", n)
	return nil
}

func (s *Session) setWorkdir(arg string) error {
	if arg == "" {
		fmt.Fprintln(s.out(), s.app.WorkDir())
		return nil
	}
	dir := arg
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.app.WorkDir(), dir)
	}
	prev := s.workdir
	s.workdir = filepath.Clean(dir)
	if err := s.rebuild(); err != nil {
		s.workdir = prev
		return err
	}
	s.history = append(s.history, ollama.NewSystemMessage("The working directory is now "+s.app.WorkDir()+"."))
	fmt.Fprintf(s.out(), "Working directory: %s\n", s.app.WorkDir())
	return nil
}

func (s *Session) switchModel(ctx context.Context, name string) {
	current := s.Model()
	if name == current {
		fmt.Fprintf(s.out(), "Already using %s.\n", name)
		return
	}

	models, err := s.app.Client().ListModels(ctx)
	switch {
	case err != nil:
		s.note("Could not verify available models: %v", err)
		if !s.confirm(ctx, fmt.Sprintf("Use model %q anyway?", name)) {
			fmt.Fprintf(s.out(), "Model unchanged: %s\n", current)
			return
		}
	case !hasModel(models, name):
		names := make([]string, len(models))
		for i, m := range models {
			names[i] = m.Name
		}
		s.note("Model %q is not installed. Available: %s", name, strings.Join(names, ", "))
		if !s.confirm(ctx, "Use it anyway?") {
			fmt.Fprintf(s.out(), "Model unchanged: %s\n", current)
			return
		}
	}

	s.model = name
	s.history = append(s.history, ollama.NewSystemMessage("The model has been changed to "+name+"."))
	fmt.Fprintf(s.out(), "Switched from %s to %s.\n", current, name)
}

func hasModel(models []ollama.ModelInfo, name string) bool {
	for _, m := range models {
		if m.Name == name || strings.TrimSuffix(m.Name, ":latest") == name {
			return true
		}
	}
	return false
}

// listModels prints the installed models, marking current.
func listModels(ctx context.Context, app *App, w io.Writer, current string) error {
	models, err := app.Client().ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Fprintln(w, "No models installed. Pull one with: ollama pull "+ollama.DefaultModel)
		return nil
	}
	fmt.Fprintln(w, TitleStyle.Render("Installed models"))
	for _, m := range models {
		marker, name := " ", m.Name
		if m.Name == current {
			marker, name = "*", SuccessStyle.Render(m.Name)
		}
		fmt.Fprintf(w, " %s %s %s\n", marker, name, DimStyle.Render(m.FormatSize()))
	}
	return nil
}

func (s *Session) printHistory() {
	if len(s.history) == 0 {
		fmt.Fprintln(s.out(), "No conversation yet.")
		return
	}
	width := s.app.render.width - 14
	for i, m := range s.history {
		fmt.Fprintf(s.out(), "%3d %s %s\n", i+1,
			LabelStyle.Width(10).Render(m.Role),
			util.TruncateWidth(util.FirstLine(m.Content), width))
	}
}

// =============================================================================
// CHAT
// =============================================================================

// chatInput is a plain turn: references are expanded into context first.
func (s *Session) chatInput(ctx context.Context, input string) error {
	x := s.app.expander.Expand(ctx, input)
	s.app.showWarnings(x.Warnings)
	if strings.TrimSpace(x.Query) == "" && !x.HasContext() {
		return nil
	}
	_, err := s.ask(ctx, x.Prompt(), true)
	return err
}

// ask sends content as a user turn and shows the reply. On failure the
// turn is dropped from history so the next request starts clean.
func (s *Session) ask(ctx context.Context, content string, show bool) (string, error) {
	s.history = append(s.history, ollama.NewUserMessage(content))
	reply, stats, err := s.complete(ctx)
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return "", err
	}
	s.history = append(s.history, ollama.NewAssistantMessage(reply))

	if show {
		s.showReply(reply)
		if stats != nil {
			fmt.Fprintln(s.out(), DimStyle.Render(stats.Format()))
		}
	}
	return reply, nil
}

// complete streams a reply to the current history. A missing model falls
// back to a blocking request, which can switch models.
func (s *Session) complete(ctx context.Context) (string, *ollama.StreamStats, error) {
	client := s.app.Client()
	model := s.Model()
	timeout := s.app.Config().ModelTimeout()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var sb strings.Builder
	stats := ollama.NewStreamStats()
	chunks := 0
	err := withSpinner(s.streams.Err, s.streams.Interactive, "Thinking...", func(set func(string)) error {
		return client.ChatStream(reqCtx, model, s.history, func(chunk ollama.StreamChunk) {
			stats.Observe(chunk)
			if chunk.Content == "" {
				return
			}
			sb.WriteString(chunk.Content)
			chunks++
			set(fmt.Sprintf("Generating... %d chunks", chunks))
		})
	})
	if err != nil && ollama.IsModelNotFound(err) && s.app.Config().Model.AllowFallback {
		var reply string
		ferr := withSpinner(s.streams.Err, s.streams.Interactive, "Thinking...", func(func(string)) error {
			var cerr error
			reply, cerr = client.Complete(ctx, s.history, model, timeout)
			return cerr
		})
		return reply, nil, ferr
	}
	if err != nil {
		return "", nil, err
	}
	return ollama.SanitizeThinking(sb.String()), stats, nil
}

// showReply prints a reply with thinking handled per the session setting.
// Shown thinking is printed raw because markdown rendering drops the tags.
func (s *Session) showReply(reply string) {
	text := ollama.ProcessThinking(reply, s.showThinking, s.thinkingMax)
	if s.showThinking && strings.Contains(text, "<think") {
		fmt.Fprintln(s.out(), text)
		return
	}
	fmt.Fprintln(s.out(), s.app.render.Markdown(strings.TrimSpace(text)))
}

// =============================================================================
// SEARCH
// =============================================================================

func (s *Session) search(ctx context.Context, query string) error {
	if query == "" {
		return &UsageError{Message: "search needs a query", Example: "search: golang errgroup example"}
	}
	fmt.Fprintf(s.out(), "Searching the web for: %s\n", query)

	var results []search.Result
	err := withSpinner(s.streams.Err, s.streams.Interactive, "Searching...", func(func(string)) error {
		var serr error
		results, serr = s.app.web.Search(ctx, query)
		return serr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.note("Search failed: %v", err)
		results = nil
	}
	if len(results) == 0 {
		fmt.Fprintln(s.out(), "No search results found. Proceeding with just the query.")
	} else {
		fmt.Fprintln(s.out(), DimStyle.Render(fmt.Sprintf("%d results", len(results))))
	}

	_, err = s.ask(ctx, search.FormatResults(query, results), true)
	return err
}

// =============================================================================
// EDIT
// =============================================================================

func (s *Session) edit(ctx context.Context, arg string) error {
	refs, query := ctxmention.ParseReferences(arg)
	files := ctxmention.Files(refs)
	if len(files) == 0 {
		return &UsageError{Message: "no file paths found; put them in square brackets", Example: "edit: [main.go] add a --verbose flag"}
	}
	if strings.TrimSpace(query) == "" {
		return &UsageError{Message: "say what to change", Example: "edit: [main.go] add a --verbose flag"}
	}

	for _, ref := range files {
		if err := s.editFile(ctx, ref, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) editFile(ctx context.Context, ref ctxmention.Reference, query string) error {
	current, err := s.app.files.Read(ref.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, fileops.ErrNotFound) {
		return err
	}

	label := ref.Path
	if ref.Spec != "" {
		label = fmt.Sprintf("%s (focus on lines %s)", ref.Path, ref.Spec)
	}
	body := current
	if !exists {
		body = "[New empty file]"
	}
	msg := fmt.Sprintf("Edit Request: %s\n\nFiles to Edit:\nFile: %s\nContent:\n%s\n\n"+
		"Reply with the complete updated content of %s in a single code block.",
		query, label, body, ref.Path)

	reply, err := s.ask(ctx, msg, false)
	if err != nil {
		return err
	}
	updated, ok := plan.ExtractFileContent(reply)
	if !ok {
		s.showReply(reply)
		s.note("The model did not return new content for %s.", ref.Path)
		return nil
	}
	if exists && updated == current {
		fmt.Fprintf(s.out(), "No changes detected for %s\n", ref.Path)
		return nil
	}

	kind := plan.KindWriteFile
	if !exists {
		kind = plan.KindCreateFile
	}
	p, err := s.app.runSteps(ctx, "edit: "+query, s.Model(), plan.Step{
		Kind:      kind,
		Target:    ref.Path,
		Content:   &updated,
		Rationale: query,
	})
	if res, ok := p.LastResult(0); ok && res.Outcome == plan.OutcomeSucceeded {
		s.history = append(s.history, ollama.NewSystemMessage(fmt.Sprintf("The changes to '%s' were applied.", ref.Path)))
	}
	return ignoreAbort(err)
}

// =============================================================================
// RUN
// =============================================================================

func (s *Session) run(ctx context.Context, arg string) error {
	if arg == "" {
		return &UsageError{Message: "run needs a request or a quoted command", Example: "run: 'go test ./...'"}
	}

	command, literal := literalCommand(arg)
	if !literal {
		x := s.app.expander.Expand(ctx, arg)
		s.app.showWarnings(x.Warnings)

		msg := "Command Request: " + x.Query + "\n" +
			"Please suggest a command to run based on this request. " +
			"Format your response with the command in a code block using triple backticks."
		if x.HasContext() {
			msg += "\n\n" + x.ContextBlock()
		}
		reply, err := s.ask(ctx, msg, true)
		if err != nil {
			return err
		}
		command = extractSuggestedCommand(reply)
		if command == "" {
			s.note("Could not extract a command from the response.")
			return nil
		}
	}

	p, err := s.app.runSteps(ctx, "run: "+command, s.Model(), plan.Step{
		Kind:   plan.KindRunCommand,
		Target: command,
	})
	if res, ok := p.LastResult(0); ok && res.Outcome != plan.OutcomeSkipped {
		s.history = append(s.history, ollama.NewSystemMessage(fmt.Sprintf(
			"The command '%s' was executed with the following output:\n%s", command, stepOutput(res.Detail))))
	}
	return ignoreAbort(err)
}

// =============================================================================
// CREATE
// =============================================================================

func (s *Session) create(ctx context.Context, arg string) error {
	refs, desc := ctxmention.ParseReferences(arg)
	files := ctxmention.Files(refs)
	if len(files) == 0 {
		return &UsageError{Message: "no file path specified; use [file_path] with create:", Example: "create: [cmd/tool/main.go] a hello world program"}
	}
	desc = strings.TrimSpace(desc)

	for _, ref := range files {
		content := ""
		if desc != "" {
			msg := fmt.Sprintf("Create Request: %s\nFile: %s\n"+
				"Reply with the complete content of the new file in a single code block.", desc, ref.Path)
			reply, err := s.ask(ctx, msg, false)
			if err != nil {
				return err
			}
			generated, ok := plan.ExtractFileContent(reply)
			if !ok {
				s.showReply(reply)
				s.note("The model did not return content for %s.", ref.Path)
				continue
			}
			content = generated
		}

		p, err := s.app.runSteps(ctx, "create: "+ref.Path, s.Model(), plan.Step{
			Kind:      plan.KindCreateFile,
			Target:    ref.Path,
			Content:   &content,
			Rationale: desc,
		})
		if res, ok := p.LastResult(0); ok && res.Outcome == plan.OutcomeSucceeded {
			s.history = append(s.history, ollama.NewSystemMessage(fmt.Sprintf("Created file '%s'.", ref.Path)))
		}
		if err != nil {
			return ignoreAbort(err)
		}
	}
	return nil
}

// =============================================================================
// PLAN
// =============================================================================

func (s *Session) plan(ctx context.Context, request string) error {
	if request == "" {
		return &UsageError{Message: "plan needs a request", Example: "plan: add unit tests for [internal/parser.go]"}
	}
	err := s.app.runPlanFlow(ctx, request, s.Model(), s.showThinking, s.thinkingMax)
	if errors.Is(err, plan.ErrAborted) || errors.Is(err, plan.ErrHalted) {
		// Already reported with the resume hint.
		return nil
	}
	return err
}

// ignoreAbort drops the cancel of a one-step REPL action; the step's
// outcome has already been shown.
func ignoreAbort(err error) error {
	if errors.Is(err, plan.ErrAborted) {
		return nil
	}
	return err
}
