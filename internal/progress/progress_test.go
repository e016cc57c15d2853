// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModel_View_RendersFields(t *testing.T) {
	m := NewModel("feat/a")
	updated, _ := m.Update(snapshotMsg(Snapshot{
		Branch:      "feat/a",
		Iteration:   7,
		AvgDuration: 90 * time.Second,
		Elapsed:     10 * time.Minute,
		Commits:     3,
		Errors:      1,
		LastCommit:  "fix widget bug",
	}))
	view := updated.View()

	for _, want := range []string{"feat/a", "7", "3", "fix widget bug"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_View_EmptyAfterDone(t *testing.T) {
	m := NewModel("feat/a")
	updated, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("expected tea.Quit command after doneMsg")
	}
	if updated.View() != "" {
		t.Errorf("View() after done = %q, want empty", updated.View())
	}
}

func TestModel_Update_CtrlCQuits(t *testing.T) {
	m := NewModel("feat/a")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected tea.Quit command on ctrl+c")
	}
}

func TestNewPanel_Disabled_NoOps(t *testing.T) {
	p := NewPanel("feat/a", false)
	// None of these should panic when disabled.
	p.Run()
	p.Update(Snapshot{Branch: "feat/a"})
	p.Stop()
}

func TestOrDash(t *testing.T) {
	if orDash("") != "-" {
		t.Error("orDash(\"\") should be \"-\"")
	}
	if orDash("x") != "x" {
		t.Error("orDash(\"x\") should be \"x\"")
	}
}
