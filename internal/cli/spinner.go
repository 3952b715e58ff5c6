// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SPINNER MODEL
// =============================================================================

type statusMsg string

type doneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	status  string
	done    bool
}

func newSpinnerModel(status string) spinnerModel {
	return spinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
		),
		status: status,
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + DimStyle.Render(m.status)
}

// =============================================================================
// RUNNING WORK BEHIND A SPINNER
// =============================================================================

// withSpinner runs fn while a spinner shows status on w. fn may update the
// status line. When enabled is false fn runs with no output at all.
//
// The spinner never reads input and installs no signal handler, so Ctrl+C
// still reaches the command's context.
func withSpinner(w io.Writer, enabled bool, status string, fn func(setStatus func(string)) error) error {
	if !enabled {
		return fn(func(string) {})
	}

	p := tea.NewProgram(newSpinnerModel(status),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	var fnErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fnErr = fn(func(s string) { p.Send(statusMsg(s)) })
		p.Send(doneMsg{})
	}()

	// The spinner is cosmetic; a render failure still waits for the work.
	_, _ = p.Run()
	<-finished
	return fnErr
}
