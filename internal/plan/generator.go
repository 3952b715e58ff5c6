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
)

// =============================================================================
// LLM CLIENT INTERFACE
// =============================================================================

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Assistant is the model collaborator. Complete sends the conversation and
// returns the reply text. Callers bound it with a context deadline.
type Assistant interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// =============================================================================
// PLAN GENERATOR
// =============================================================================

// Generator produces plans with a two-phase prompt: a free-text analysis,
// then a request for the JSON step array. A response that fails to parse
// is retried once with the parser's complaint.
type Generator struct {
	assistant Assistant
	model     string
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger

	// OnPhase, if set, is called as each phase starts ("analysis",
	// "planning", "retry").
	OnPhase func(phase string)
}

// NewGenerator creates a generator. model is recorded on the plan.
func NewGenerator(a Assistant, model string, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultExecConfig().LLMTimeout
	}
	return &Generator{
		assistant: a,
		model:     model,
		timeout:   timeout,
		now:       time.Now,
		log:       logger,
	}
}

// Generate turns request into a draft plan. fileContext is the rendered
// "Files for context" block, possibly empty.
func (g *Generator) Generate(ctx context.Context, request, fileContext string) (*Plan, error) {
	if g.assistant == nil {
		return nil, errors.New("LLM client not configured")
	}
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.New("empty plan request")
	}

	g.phase("analysis")
	history := []Message{{Role: RoleUser, Content: analysisPrompt(request, fileContext)}}
	analysis, err := g.complete(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	history = append(history, Message{Role: RoleAssistant, Content: analysis})

	g.phase("planning")
	history = append(history, Message{Role: RoleUser, Content: planningPrompt})
	reply, err := g.complete(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	p, perr := Parse(reply)
	if perr != nil {
		if !errors.Is(perr, ErrMalformedPlan) {
			return nil, perr
		}
		g.log.Warn("plan response rejected, retrying", "error", perr)
		g.phase("retry")
		history = append(history,
			Message{Role: RoleAssistant, Content: reply},
			Message{Role: RoleUser, Content: retryPrompt(perr)},
		)
		reply, err = g.complete(ctx, history)
		if err != nil {
			return nil, fmt.Errorf("planning retry: %w", err)
		}
		p, perr = Parse(reply)
		if perr != nil {
			return nil, perr
		}
	}

	p.Description = request
	p.Model = g.model
	p.Analysis = StripThinking(analysis)
	p.Status = StatusDraft
	p.Stamp(g.now())
	g.log.Info("plan generated", "plan", p.ID, "steps", len(p.Steps))
	return p, nil
}

func (g *Generator) complete(ctx context.Context, history []Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	reply, err := g.assistant.Complete(callCtx, history)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("model returned an empty response")
	}
	return reply, nil
}

func (g *Generator) phase(name string) {
	if g.OnPhase != nil {
		g.OnPhase(name)
	}
}
