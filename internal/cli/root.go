// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Legorobotdude/PrivateCode/internal/config"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// =============================================================================
// ROOT COMMAND
// =============================================================================

// rootOptions carries the global flags and what PersistentPreRunE builds
// from them.
type rootOptions struct {
	configPath string
	model      string
	workdir    string
	debug      bool

	cfg     *config.Config
	app     *App
	logFile *os.File
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRoot()
	return root
}

// newRoot also returns the options so the caller can release what setup
// opened; cobra skips post-run hooks when a command fails.
func newRoot() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "privatecode",
		Short: "A local coding assistant backed by Ollama",
		Long: `privatecode is a coding assistant that runs against a local Ollama model.
It chats about code, pulls files and web pages into context, and turns
requests into step-by-step plans that are confirmed and executed one step
at a time.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default is ~/.privatecode/config.toml)")
	pf.StringVarP(&opts.model, "model", "m", "", "model to use instead of model.name")
	pf.StringVarP(&opts.workdir, "workdir", "C", "", "working directory for commands and file paths")
	pf.BoolVarP(&opts.debug, "debug", "d", false, "log debug output to stderr")

	root.AddCommand(
		newChatCommand(opts),
		newPlanCommand(opts),
		newExecCommand(opts),
		newResumeCommand(opts),
		newHistoryCommand(opts),
		newExportCommand(opts),
		newClassifyCommand(opts),
		newShowCommand(opts),
		newSearchCommand(opts),
		newFetchCommand(opts),
		newModelsCommand(opts),
		newConfigCommand(opts),
	)
	return root, opts
}

// Execute runs the command line and exits with the mapped status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	root, opts := newRoot()
	err := root.ExecuteContext(ctx)
	opts.teardown()
	stop()
	if err != nil {
		DisplayError(os.Stderr, err)
		os.Exit(ExitCode(err))
	}
}

// =============================================================================
// SETUP
// =============================================================================

func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.model != "" {
		cfg.Model.Name = o.model
	}
	if o.workdir != "" {
		cfg.Execution.WorkingDir = o.workdir
	}
	o.cfg = cfg
	config.SetGlobal(cfg)

	ApplyColorMode(cfg.Display.Color)
	slog.SetDefault(o.logger(cmd))
	return nil
}

// logger writes to stderr with --debug and to the state directory's log
// file otherwise, so the terminal stays clean.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if o.debug {
		return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		}))
	}

	var w io.Writer = io.Discard
	if err := os.MkdirAll(o.cfg.StateDir, util.DefaultDirPerm); err == nil {
		f, err := os.OpenFile(o.cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err == nil {
			o.logFile = f
			w = f
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func (o *rootOptions) teardown() {
	if o.app != nil {
		if err := o.app.Close(); err != nil {
			slog.Warn("closing run index", "error", err)
		}
		o.app = nil
	}
	if o.logFile != nil {
		o.logFile.Close()
		o.logFile = nil
	}
}

// streams wires the command's in/out to the App.
func (o *rootOptions) streams(cmd *cobra.Command) Streams {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	return Streams{
		In:          NewLineReader(cmd.InOrStdin(), out),
		Out:         out,
		Err:         errOut,
		Interactive: errOut == io.Writer(os.Stderr) && IsStderrTTY(),
	}
}

// appFor builds the App for a one-shot command.
func (o *rootOptions) appFor(cmd *cobra.Command) (*App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := NewApp(o.cfg, o.streams(cmd), slog.Default())
	if err != nil {
		return nil, err
	}
	o.app = app
	return app, nil
}

// interruptible returns the command context cancelled on Ctrl+C.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}
