// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive loop with line editing and persistent input history.

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Legorobotdude/PrivateCode/internal/config"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

const historyFileName = "repl_history"

// =============================================================================
// LINE EDITOR
// =============================================================================

// lineEditor provides arrow-key history and line editing for the REPL.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(stateDir string) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &lineEditor{
		line:        line,
		historyFile: filepath.Join(stateDir, historyFileName),
	}
	if f, err := os.Open(e.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return e
}

// Prompt reads one line without recording it; used for confirmations.
func (e *lineEditor) Prompt(prompt string) (string, error) {
	return e.line.Prompt(prompt)
}

// readInput reads a REPL request and adds it to history.
func (e *lineEditor) readInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (e *lineEditor) Close() {
	defer e.line.Close()
	if err := os.MkdirAll(filepath.Dir(e.historyFile), util.DefaultDirPerm); err != nil {
		return
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = e.line.WriteHistory(f)
}

// =============================================================================
// REPL
// =============================================================================

func runREPL(cmd *cobra.Command, opts *rootOptions) error {
	editor := newLineEditor(opts.cfg.StateDir)
	defer editor.Close()

	streams := opts.streams(cmd)
	streams.In = editor

	session, err := NewSession(opts.cfg, streams, opts.model, opts.workdir, slog.Default())
	if err != nil {
		return err
	}
	defer session.Close()
	session.source = config.Global

	if stop := watchConfig(opts, streams.Err); stop != nil {
		defer stop()
	}

	printBanner(streams.Out, session)

	for {
		input, err := editor.readInput(PromptStyle.Render("privatecode> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D both leave.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				slog.Warn("reading input", "error", err)
			}
			fmt.Fprintln(streams.Out)
			return nil
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		ctx, cancel := interruptible(cmd)
		quit, err := session.Handle(ctx, input)
		interrupted := ctx.Err() != nil && cmd.Context().Err() == nil
		cancel()

		switch {
		case interrupted:
			fmt.Fprintln(streams.Err, "\n"+WarningStyle.Render("[Cancelled]"))
		case err != nil:
			DisplayError(streams.Err, err)
		}
		if quit {
			fmt.Fprintln(streams.Out, "Goodbye.")
			return nil
		}
		if cmd.Context().Err() != nil {
			return cmd.Context().Err()
		}
	}
}

// watchConfig reloads the config file into the global snapshot while the
// REPL runs. It returns nil when the file cannot be watched.
func watchConfig(opts *rootOptions, errOut io.Writer) func() {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil
		}
		path = p
	}
	w, err := config.Watch(path, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintf(errOut, "\n%s %s: %v\n", WarningStyle.Render("[WARN]"), path, err)
			return
		}
		config.SetGlobal(cfg)
	}, slog.Default())
	if err != nil {
		slog.Warn("config watch disabled", "path", path, "error", err)
		return nil
	}
	return func() { _ = w.Close() }
}

func printBanner(w io.Writer, s *Session) {
	fmt.Fprintln(w, TitleStyle.Render("privatecode "+Version))
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Model:"), s.Model())
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Directory:"), s.app.WorkDir())
	fmt.Fprintln(w, DimStyle.Render("Type 'help' for commands, 'exit' to quit."))
	fmt.Fprintln(w)
}

// =============================================================================
// HELP
// =============================================================================

var helpEntries = []struct{ usage, desc string }{
	{"<message>", "chat; [path], [path:10-20] and [url] add context"},
	{"search: <query>", "search the web and answer from the results"},
	{"edit: [file] <change>", "rewrite a file, with a diff to confirm"},
	{"run: <request>", "ask for a command, confirm and run it"},
	{"run: 'command'", "run a command as written"},
	{"create: [file] [description]", "create a file, generated or empty"},
	{"plan: <request>", "generate and execute a step-by-step plan"},
	{"models", "list installed models"},
	{"model: <name>", "switch models for this session"},
	{"thinking on|off", "show or hide <think> blocks"},
	{"thinking length <n>", "cut shown thinking at n characters"},
	{"timeout: <seconds>", "change the model request timeout"},
	{"cwd: <dir>", "change the working directory"},
	{"history", "show this conversation"},
	{"clear", "forget this conversation"},
	{"exit", "leave"},
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, SectionStyle.Render("Commands"))
	width := 0
	for _, e := range helpEntries {
		width = max(width, len(e.usage))
	}
	for _, e := range helpEntries {
		fmt.Fprintf(w, "  %s  %s\n", CommandStyle.Render(fmt.Sprintf("%-*s", width, e.usage)), DimStyle.Render(e.desc))
	}
}
