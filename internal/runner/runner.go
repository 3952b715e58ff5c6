// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	// DefaultTimeout applies when Run is given a zero timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxOutput caps each of stdout and stderr.
	DefaultMaxOutput = 256 * 1024

	// waitDelay bounds how long Wait blocks on pipes held open by
	// orphaned grandchildren after the group is killed.
	waitDelay = 2 * time.Second
)

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// Result is what a command produced.
type Result struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Combined returns stdout followed by stderr, labelled the way step
// results show them.
func (r Result) Combined() string {
	var sb strings.Builder
	if r.Stdout != "" {
		sb.WriteString(r.Stdout)
	}
	if r.Stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("STDERR:\n")
		sb.WriteString(r.Stderr)
	}
	if sb.Len() == 0 {
		return "(no output)"
	}
	return sb.String()
}

// Runner spawns commands. The zero value uses the platform shell in the
// current directory.
type Runner struct {
	// Shell is the interpreter argv; the command is appended as the last
	// argument. Empty means bash -c (cmd /C on Windows).
	Shell []string

	// Dir is the working directory for commands.
	Dir string

	// MaxOutput caps each captured stream, in bytes.
	MaxOutput int

	Logger *slog.Logger
}

// New returns a runner. shell is split on whitespace, e.g. "sh -c".
func New(shell, dir string, logger *slog.Logger) *Runner {
	return &Runner{
		Shell:  strings.Fields(shell),
		Dir:    dir,
		Logger: logger,
	}
}

func (r *Runner) shell() []string {
	if len(r.Shell) > 0 {
		return r.Shell
	}
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"bash", "-c"}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes command and waits for it. A non-zero exit returns the
// result together with an *ExitError; an expired timeout returns the
// partial result with ErrTimeout. Failures to start are wrapped.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if strings.TrimSpace(command) == "" {
		return Result{}, errors.New("empty command")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append([]string{}, r.shell()...), command)
	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = sanitizeEnvironment(os.Environ())
	configureProcess(cmd)
	cmd.Cancel = func() error {
		terminateProcess(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay

	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  -1,
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	log := r.logger().With("command", command, "duration", res.Duration)

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		log.Warn("command timed out", "timeout", timeout)
		return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		log.Info("command cancelled")
		return res, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Debug("command failed", "exit_code", res.ExitCode)
			return res, &ExitError{Code: res.ExitCode}
		}
		log.Warn("command could not start", "error", err)
		return res, fmt.Errorf("start %q: %w", argv[0], err)
	}

	log.Debug("command finished", "exit_code", res.ExitCode)
	return res, nil
}

// cappedBuffer keeps the first limit bytes and discards the rest while
// still reporting full writes, so the child never sees EPIPE.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + fmt.Sprintf("\n[output truncated at %d bytes]", b.limit)
	}
	return b.buf.String()
}

// sanitizeEnvironment drops loader and shell-function injection variables.
func sanitizeEnvironment(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		upper := strings.ToUpper(key)
		if strings.HasPrefix(upper, "LD_") ||
			strings.HasPrefix(upper, "DYLD_") ||
			strings.HasPrefix(upper, "BASH_FUNC_") ||
			upper == "BASH_ENV" || upper == "ENV" {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// FormatDuration renders d compactly: 450ms, 12s, 2m, 2m30s.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
