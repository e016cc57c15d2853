// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// Panel drives a bubbletea program rendering the progress Model,
// gated by whether stdout is a terminal — the FSM pushes Snapshot
// values via Update as iterations complete, and calls Stop when the
// branch reaches a terminal state.
type Panel struct {
	program *tea.Program
	enabled bool
}

// NewPanel returns a Panel for the given branch. enabled should be
// monitoring.show_progress AND stdout-is-a-terminal; when false, Update
// and Stop are no-ops so callers never need an extra conditional.
func NewPanel(branch string, enabled bool) *Panel {
	if !enabled {
		return &Panel{enabled: false}
	}
	program := tea.NewProgram(NewModel(branch), tea.WithOutput(os.Stdout))
	return &Panel{program: program, enabled: true}
}

// IsTerminalStdout reports whether stdout is attached to a terminal,
// the gate spec §4.5 requires for auto-disabling the panel.
func IsTerminalStdout() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Run starts the bubbletea event loop in the background. Callers must
// call Stop when the branch's FSM reaches a terminal state.
func (p *Panel) Run() {
	if !p.enabled {
		return
	}
	go func() {
		_, _ = p.program.Run()
	}()
}

// Update pushes a new snapshot into the running program.
func (p *Panel) Update(snap Snapshot) {
	if !p.enabled {
		return
	}
	p.program.Send(snapshotMsg(snap))
}

// Stop ends the program's event loop.
func (p *Panel) Stop() {
	if !p.enabled {
		return
	}
	p.program.Send(doneMsg{})
}
