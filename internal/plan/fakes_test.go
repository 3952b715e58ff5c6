// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Legorobotdude/PrivateCode/internal/runner"
)

// scriptedConfirmer answers prompts from a fixed script and records them.
// Once the script runs out it skips.
type scriptedConfirmer struct {
	mu      sync.Mutex
	script  []Decision
	prompts []Prompt
}

func script(decisions ...Decision) *scriptedConfirmer {
	return &scriptedConfirmer{script: decisions}
}

func (c *scriptedConfirmer) Confirm(_ context.Context, p Prompt) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	if len(c.script) == 0 {
		return Skip(), nil
	}
	d := c.script[0]
	c.script = c.script[1:]
	return d, nil
}

type fakeRun struct {
	res runner.Result
	err error
}

// fakeRunner returns canned results keyed by command.
type fakeRunner struct {
	calls   []string
	results map[string]fakeRun
}

func (r *fakeRunner) Run(_ context.Context, command string, _ time.Duration) (runner.Result, error) {
	r.calls = append(r.calls, command)
	if fr, ok := r.results[command]; ok {
		return fr.res, fr.err
	}
	return runner.Result{}, nil
}

// memStore keeps copies of every save.
type memStore struct {
	saves []Plan
	fail  error
}

func (s *memStore) Save(p *Plan) error {
	if s.fail != nil {
		return s.fail
	}
	cp := *p
	cp.Results = append([]StepResult(nil), p.Results...)
	s.saves = append(s.saves, cp)
	return nil
}

func (s *memStore) last() Plan {
	return s.saves[len(s.saves)-1]
}

// fakeAssistant replays canned replies.
type fakeAssistant struct {
	replies []string
	err     error
	seen    [][]Message
}

func (a *fakeAssistant) Complete(_ context.Context, messages []Message) (string, error) {
	a.seen = append(a.seen, append([]Message(nil), messages...))
	if a.err != nil {
		return "", a.err
	}
	if len(a.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := a.replies[0]
	a.replies = a.replies[1:]
	return r, nil
}
