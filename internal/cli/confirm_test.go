// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
)

func TestParseAnswer(t *testing.T) {
	plain := plan.Prompt{}
	redirect := plan.Prompt{AllowRedirect: true}
	token := plan.Prompt{RequireToken: "yes, run it"}

	tests := []struct {
		name   string
		answer string
		prompt plan.Prompt
		want   plan.Decision
	}{
		{"yes", "y", plain, plan.Accept()},
		{"yes word", " YES ", plain, plan.Accept()},
		{"empty skips", "", plain, plan.Skip()},
		{"anything else skips", "sure", plain, plan.Skip()},
		{"skip", "s", plain, plan.Skip()},
		{"quit", "q", plain, plan.Cancel()},
		{"abort", "abort", plain, plan.Cancel()},
		{"create with redirect", "c", redirect, plan.Redirect()},
		{"create without redirect", "c", plain, plan.Skip()},
		{"token typed", "yes, run it", token, plan.Confirm("yes, run it")},
		{"token wrong is passed through", "y", token, plan.Confirm("y")},
		{"token empty skips", "", token, plan.Skip()},
		{"token quit", "q", token, plan.Cancel()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnswer(tt.answer, tt.prompt))
		})
	}
}

func TestTerminalConfirmer_ShowsCommandAndTier(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(NewLineReader(strings.NewReader("y\n"), &out), &out, NewRenderer(false, false, 80))

	d, err := c.Confirm(context.Background(), plan.Prompt{
		Kind:     plan.PromptCommand,
		Question: "Run this command?",
		Command:  "rm -rf build",
		Classification: safety.Classification{
			Tier:    safety.Caution,
			Warning: "deletes files",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, plan.Accept(), d)

	text := out.String()
	assert.Contains(t, text, "$ rm -rf build")
	assert.Contains(t, text, "[CAUTION]")
	assert.Contains(t, text, "deletes files")
	assert.Contains(t, text, "Run this command? [y/s/q]")
}

func TestTerminalConfirmer_EndOfInputSkips(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(NewLineReader(strings.NewReader(""), &out), &out, NewRenderer(false, false, 80))

	d, err := c.Confirm(context.Background(), plan.Prompt{Kind: plan.PromptCommand, Command: "ls"})
	require.NoError(t, err)
	assert.Equal(t, plan.Skip(), d)
}

func TestTerminalConfirmer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	c := NewTerminalConfirmer(NewLineReader(strings.NewReader("y\n"), &out), &out, NewRenderer(false, false, 80))

	d, err := c.Confirm(ctx, plan.Prompt{Kind: plan.PromptCommand, Command: "ls"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, plan.Cancel(), d)
	assert.Empty(t, out.String())
}

func TestTerminalConfirmer_SensitiveFile(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(NewLineReader(strings.NewReader("s\n"), &out), &out, NewRenderer(false, false, 80))

	d, err := c.Confirm(context.Background(), plan.Prompt{
		Kind:      plan.PromptFileChange,
		Question:  "Apply this change?",
		Step:      plan.Step{Kind: plan.KindWriteFile, Target: ".env"},
		Sensitive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.Skip(), d)
	assert.Contains(t, out.String(), "[SENSITIVE]")
	assert.Contains(t, out.String(), ".env may hold credentials")
}
