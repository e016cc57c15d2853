// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress renders an in-terminal, overwrite-in-place panel
// showing one branch's iteration loop: iteration number, average
// iteration duration, elapsed wall time, commits observed, error
// count, the most recent commit (as the caller supplies it; the FSM
// passes the HEAD commit hash), and the last error. It is
// a bubbletea program in the same Init/Update/View shape the
// teacher's terminal ticket viewer uses, reduced to a single
// non-interactive status line set — there is no input handling here,
// only periodic Snapshot pushes from the FSM.
package progress

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is one point-in-time view of a branch's loop state, pushed
// into the running program whenever the FSM completes an iteration.
type Snapshot struct {
	Branch        string
	Iteration     uint64
	AvgDuration   time.Duration
	Elapsed       time.Duration
	Commits       int
	Errors        uint64
	LastCommit    string
	LastError     string
}

// snapshotMsg wraps a Snapshot for bubbletea's message loop.
type snapshotMsg Snapshot

// Model is the bubbletea model backing the panel.
type Model struct {
	snap  Snapshot
	style panelStyles
	done  bool
}

type panelStyles struct {
	label lipgloss.Style
	value lipgloss.Style
	err   lipgloss.Style
}

func newStyles() panelStyles {
	return panelStyles{
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		value: lipgloss.NewStyle().Bold(true),
		err:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

// NewModel returns a Model with no snapshot yet pushed.
func NewModel(branch string) Model {
	return Model{snap: Snapshot{Branch: branch}, style: newStyles()}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model. The only messages this program acts on
// are snapshot pushes from Panel.Update, the done signal from
// Panel.Stop, and the terminal quit key (Ctrl-C), since the panel has
// no interactive state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = Snapshot(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done {
		return ""
	}
	s := m.snap
	lines := []string{
		m.field("branch", s.Branch),
		m.field("iteration", fmt.Sprintf("%d", s.Iteration)),
		m.field("avg duration", s.AvgDuration.Round(time.Second).String()),
		m.field("elapsed", s.Elapsed.Round(time.Second).String()),
		m.field("commits", fmt.Sprintf("%d", s.Commits)),
		m.field("errors", fmt.Sprintf("%d", s.Errors)),
		m.field("last commit", orDash(s.LastCommit)),
	}
	if s.LastError != "" {
		lines = append(lines, m.style.label.Render("last error: ")+m.style.err.Render(s.LastError))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func (m Model) field(label, value string) string {
	return m.style.label.Render(label+": ") + m.style.value.Render(value)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// doneMsg signals the program to quit after the FSM has finished.
type doneMsg struct{}
