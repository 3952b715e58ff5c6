// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for every command and the REPL.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/safety"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// SectionStyle is used for step headers within a plan run
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")) // White

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// SuccessStyle is used for success messages and OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle is used for warnings and cautions
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dark gray

	// PromptStyle is used for the REPL prompt and confirmation questions
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")). // Yellow
			Bold(true)

	// CommandStyle highlights a shell command awaiting confirmation
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")). // Bright green
			Bold(true)

	// Diff line styles
	diffAddStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	diffDelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	diffHunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	diffHeaderStyle = lipgloss.NewStyle().Bold(true)
)

// =============================================================================
// BADGES
// =============================================================================

// TierBadge renders a command's risk tier.
func TierBadge(t safety.Tier) string {
	label := "[" + strings.ToUpper(t.String()) + "]"
	switch t {
	case safety.Safe:
		return SuccessStyle.Render(label)
	case safety.Caution:
		return WarningStyle.Bold(true).Render(label)
	default:
		return ErrorStyle.Render(label)
	}
}

// OutcomeBadge renders a step outcome; the empty outcome is pending.
func OutcomeBadge(o plan.Outcome) string {
	switch o {
	case plan.OutcomeSucceeded:
		return SuccessStyle.Render("[OK]")
	case plan.OutcomeFailed:
		return ErrorStyle.Render("[FAIL]")
	case plan.OutcomeSkipped:
		return WarningStyle.Render("[SKIP]")
	default:
		return DimStyle.Render("[ .. ]")
	}
}

// StatusBadge renders a plan status.
func StatusBadge(s plan.Status) string {
	return statusStyle(s).Render(s.String())
}

func statusStyle(s plan.Status) lipgloss.Style {
	switch s {
	case plan.StatusCompleted:
		return SuccessStyle
	case plan.StatusAborted:
		return ErrorStyle
	case plan.StatusInProgress:
		return WarningStyle
	default:
		return DimStyle
	}
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// RenderSeparator renders a horizontal separator line of the specified width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 70
	}
	return SeparatorStyle.Render(strings.Repeat("─", width))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}
