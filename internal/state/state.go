// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists LoopState to .ralph/state.toml. Writes are
// atomic: a temporary file is written, fsynced, and renamed into
// place, and the parent directory is fsynced afterward, so a reader
// never observes a torn write — the same discipline the atomic
// watchdog-state write this package is descended from used for binary
// transition markers.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Mode selects which prompt template a branch's loop is driven from.
type Mode string

const (
	ModePlan  Mode = "plan"
	ModeBuild Mode = "build"
)

// LoopState is the per-worktree persisted state of one branch's
// iteration FSM.
type LoopState struct {
	Branch                 string     `toml:"branch"`
	Active                 bool       `toml:"active"`
	Mode                   Mode       `toml:"mode"`
	Iteration              uint64     `toml:"iteration"`
	StartedAt              time.Time  `toml:"started_at"`
	LastIterationAt        time.Time  `toml:"last_iteration_at"`
	MaxIterations          *uint64    `toml:"max_iterations,omitempty"`
	ErrorCount             uint64     `toml:"error_count"`
	ConsecutiveErrors      uint64     `toml:"consecutive_errors"`
	LastError              string     `toml:"last_error,omitempty"`
	LastCommit             string     `toml:"last_commit,omitempty"`
	IdleIterations         uint64     `toml:"idle_iterations"`
	CompletionPromise      string     `toml:"completion_promise,omitempty"`
	PromiseMatched         bool       `toml:"promise_matched,omitempty"`
	PendingValidationError string     `toml:"pending_validation_error,omitempty"`
	Notes                  []string   `toml:"notes,omitempty"`
}

// New returns the initial state for a branch starting fresh in the
// given mode.
func New(branch string, mode Mode) *LoopState {
	now := time.Now().UTC()
	return &LoopState{
		Branch:    branch,
		Mode:      mode,
		StartedAt: now,
	}
}

// Load reads and parses a state file. A missing file is reported via
// os.IsNotExist on the returned error so callers can distinguish "no
// prior run" from "corrupt state".
func Load(path string) (*LoopState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s LoopState
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the state atomically: marshal, write to a temp file in
// the same directory, fsync, rename, fsync the parent directory. A
// reader racing with Save always sees either the old or the new
// content in full, never a partial write.
func Save(path string, s *LoopState) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tempPath := path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	if parent, err := os.Open(dir); err == nil {
		parent.Sync()
		parent.Close()
	}

	return nil
}

// Validate checks the invariants §3 places on LoopState.
func (s *LoopState) Validate() error {
	if s.ConsecutiveErrors > s.ErrorCount {
		return fmt.Errorf("consecutive_errors (%d) exceeds error_count (%d)", s.ConsecutiveErrors, s.ErrorCount)
	}
	if s.IdleIterations > s.Iteration {
		return fmt.Errorf("idle_iterations (%d) exceeds iteration (%d)", s.IdleIterations, s.Iteration)
	}
	return nil
}
