// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// PLAN STATUS
// =============================================================================

// Status is the lifecycle state of a plan.
type Status string

const (
	// StatusDraft - parsed but not yet started
	StatusDraft Status = "draft"

	// StatusInProgress - at least one step may have run
	StatusInProgress Status = "in_progress"

	// StatusCompleted - every step has a terminal result
	StatusCompleted Status = "completed"

	// StatusAborted - cancelled by the user
	StatusAborted Status = "aborted"
)

// String returns a display label for the status.
func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusInProgress:
		return "In progress"
	case StatusCompleted:
		return "Completed"
	case StatusAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// =============================================================================
// STEP KIND
// =============================================================================

// StepKind tags the Step union.
type StepKind string

const (
	KindCreateFile   StepKind = "create_file"
	KindWriteFile    StepKind = "write_file"
	KindEditFile     StepKind = "edit_file"
	KindRunCommand   StepKind = "run_command"
	KindVerifyOutput StepKind = "verify_output"
)

// IsCommand reports whether the step runs a shell command.
func (k StepKind) IsCommand() bool {
	return k == KindRunCommand || k == KindVerifyOutput
}

// IsFile reports whether the step mutates a file.
func (k StepKind) IsFile() bool {
	return k == KindCreateFile || k == KindWriteFile || k == KindEditFile
}

func (k StepKind) valid() bool {
	return k.IsCommand() || k.IsFile()
}

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the terminal result of one step attempt.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// =============================================================================
// STEP
// =============================================================================

// Step is one action in a plan. Content and Pattern are pointers because
// "absent" and "empty" mean different things: write_file may write an empty
// file but must say so.
type Step struct {
	Index     int      `json:"index"`
	Kind      StepKind `json:"kind"`
	Target    string   `json:"target"`
	Content   *string  `json:"content,omitempty"`
	Pattern   *string  `json:"pattern,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Text returns Content, or "" when absent.
func (s Step) Text() string {
	if s.Content == nil {
		return ""
	}
	return *s.Content
}

// HasPattern reports whether an edit_file step replaces a pattern rather
// than the whole file.
func (s Step) HasPattern() bool {
	return s.Pattern != nil
}

// Summary describes the step in one line.
func (s Step) Summary() string {
	switch s.Kind {
	case KindCreateFile:
		return "Create file " + s.Target
	case KindWriteFile:
		return "Write file " + s.Target
	case KindEditFile:
		if s.HasPattern() {
			return fmt.Sprintf("Edit %s: replace %q", s.Target, util.TruncateRunes(util.FirstLine(*s.Pattern), 40))
		}
		return "Rewrite file " + s.Target
	case KindRunCommand:
		return "Run: " + s.Target
	case KindVerifyOutput:
		return fmt.Sprintf("Run and check: %s (expect %q)", s.Target, util.TruncateRunes(strings.TrimSpace(s.Text()), 40))
	default:
		return string(s.Kind) + " " + s.Target
	}
}

// =============================================================================
// STEP RESULT
// =============================================================================

// StepResult records one terminal transition. Results are appended, never
// edited; the state of a step is its last result.
type StepResult struct {
	StepIndex int       `json:"step_index"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// PLAN
// =============================================================================

// Plan is an ordered list of steps and the log of what happened to them.
type Plan struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Model       string       `json:"model,omitempty"`
	Analysis    string       `json:"analysis,omitempty"`
	Status      Status       `json:"status"`
	Steps       []Step       `json:"steps"`
	Results     []StepResult `json:"results"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewID returns a plan id such as 20250102-150405-1a2b3c4d.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format("20060102-150405") + "-" + suffix
}

// Stamp assigns an id and timestamps if the plan has none yet.
func (p *Plan) Stamp(now time.Time) {
	if p.ID == "" {
		p.ID = NewID(now)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
}

// LastResult returns the most recent result for step i.
func (p *Plan) LastResult(i int) (StepResult, bool) {
	for j := len(p.Results) - 1; j >= 0; j-- {
		if p.Results[j].StepIndex == i {
			return p.Results[j], true
		}
	}
	return StepResult{}, false
}

// Done reports whether step i has a terminal result.
func (p *Plan) Done(i int) bool {
	_, ok := p.LastResult(i)
	return ok
}

// NextPending returns the index of the first step without a result, or -1.
func (p *Plan) NextPending() int {
	for i := range p.Steps {
		if !p.Done(i) {
			return i
		}
	}
	return -1
}

// IsFinished returns true if the plan is in a terminal state.
func (p *Plan) IsFinished() bool {
	return p.Status == StatusCompleted || p.Status == StatusAborted
}

// Counts tallies the current state of every step.
func (p *Plan) Counts() (succeeded, failed, skipped, pending int) {
	for i := range p.Steps {
		r, ok := p.LastResult(i)
		if !ok {
			pending++
			continue
		}
		switch r.Outcome {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return
}

// Progress returns the number of finished steps over the total, e.g. "2/5".
func (p *Plan) Progress() string {
	_, _, _, pending := p.Counts()
	return fmt.Sprintf("%d/%d", len(p.Steps)-pending, len(p.Steps))
}

// Reopen makes an aborted plan runnable again.
func (p *Plan) Reopen() error {
	if p.Status != StatusAborted {
		return fmt.Errorf("can only reopen aborted plans, current status: %s", p.Status)
	}
	p.Status = StatusInProgress
	return nil
}
