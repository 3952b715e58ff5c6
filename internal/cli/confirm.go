// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Terminal confirmation of plan steps.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads one answer. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// plainReader reads answers from a non-interactive stream.
type plainReader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineReader returns a LineReader over in that echoes prompts to out.
func NewLineReader(in io.Reader, out io.Writer) LineReader {
	return &plainReader{in: bufio.NewReader(in), out: out}
}

func (r *plainReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// =============================================================================
// ANSWER PARSING
// =============================================================================

// ParseAnswer maps a typed answer to a decision for prompt p.
//
// When p requires a token, anything other than skip or quit is passed
// through as the typed token and the executor decides whether it matches.
// Otherwise only an explicit yes accepts; unrecognised input skips.
func ParseAnswer(answer string, p plan.Prompt) plan.Decision {
	trimmed := strings.TrimSpace(answer)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "q", "quit", "abort":
		return plan.Cancel()
	case "s", "skip":
		return plan.Skip()
	}

	if p.RequireToken != "" {
		if trimmed == "" {
			return plan.Skip()
		}
		return plan.Confirm(trimmed)
	}

	switch lower {
	case "y", "yes":
		return plan.Accept()
	case "c", "create":
		if p.AllowRedirect {
			return plan.Redirect()
		}
	}
	return plan.Skip()
}

// =============================================================================
// TERMINAL CONFIRMER
// =============================================================================

// TerminalConfirmer shows each step's command or file change and reads the
// user's answer.
type TerminalConfirmer struct {
	in     LineReader
	out    io.Writer
	render *Renderer
}

// NewTerminalConfirmer creates a confirmer reading from in.
func NewTerminalConfirmer(in LineReader, out io.Writer, render *Renderer) *TerminalConfirmer {
	return &TerminalConfirmer{in: in, out: out, render: render}
}

// Confirm implements plan.Confirmer. End of input skips the step; an
// aborted prompt (Ctrl+C) cancels the plan.
func (c *TerminalConfirmer) Confirm(ctx context.Context, p plan.Prompt) (plan.Decision, error) {
	if err := ctx.Err(); err != nil {
		return plan.Cancel(), err
	}

	c.show(p)

	answer, err := c.in.Prompt(PromptStyle.Render(p.Question) + " " + DimStyle.Render(choices(p)) + " ")
	switch {
	case errors.Is(err, liner.ErrPromptAborted):
		return plan.Cancel(), nil
	case errors.Is(err, io.EOF):
		fmt.Fprintln(c.out)
		return plan.Skip(), nil
	case err != nil:
		return plan.Skip(), err
	}
	return ParseAnswer(answer, p), nil
}

func (c *TerminalConfirmer) show(p plan.Prompt) {
	switch p.Kind {
	case plan.PromptCommand:
		fmt.Fprintf(c.out, "  %s %s\n", DimStyle.Render("$"), CommandStyle.Render(p.Command))
		cls := p.Classification
		fmt.Fprintf(c.out, "  %s", TierBadge(cls.Tier))
		if cls.Tier != safety.Safe && cls.Warning != "" {
			fmt.Fprintf(c.out, " %s", WarningStyle.Render(cls.Warning))
		}
		fmt.Fprintln(c.out)
	default:
		if p.Sensitive {
			fmt.Fprintf(c.out, "  %s %s\n", WarningStyle.Bold(true).Render("[SENSITIVE]"),
				WarningStyle.Render(p.Step.Target+" may hold credentials or system configuration"))
		}
		if p.Preview != nil {
			fmt.Fprint(c.out, c.render.Preview(p.Preview, p.Step.Text()))
			fmt.Fprintln(c.out, DimStyle.Render(p.Preview.Summary()))
		}
	}
}

func choices(p plan.Prompt) string {
	if p.RequireToken != "" {
		return "(s = skip, q = abort plan)"
	}
	if p.AllowRedirect {
		return "[y/c/s/q]"
	}
	return "[y/s/q]"
}
