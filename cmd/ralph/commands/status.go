// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/lock"
	"github.com/ralph-dev/ralph/internal/scheduler"
	"github.com/ralph-dev/ralph/internal/state"
)

// branchStatus is one worktree's current state plus whether a live
// process holds its advisory lock.
type branchStatus struct {
	Branch    string `json:"branch"`
	Active    bool   `json:"active"`
	Mode      string `json:"mode"`
	Iteration uint64 `json:"iteration"`
	LastError string `json:"last_error,omitempty"`
	Promise   string `json:"completion_promise,omitempty"`
	HolderPID int    `json:"holder_pid,omitempty"`
}

type statusParams struct {
	cli.JSONOutput
	Config string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
}

func statusCommand() *cli.Command {
	params := &statusParams{}

	return &cli.Command{
		Name:    "status",
		Summary: "Print current loop state for every worktree",
		Usage:   "ralph status [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("status takes no positional arguments, got %q", args[0])
			}

			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}

			statuses, err := collectStatuses(rc.rootDir)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(statuses); done {
				return err
			}

			printStatuses(statuses)
			return nil
		},
	}
}

func collectStatuses(rootDir string) ([]branchStatus, error) {
	worktreeRoot := filepath.Join(rootDir, ".worktrees")
	entries, err := os.ReadDir(worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", worktreeRoot, err)
	}

	var statuses []branchStatus
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		worktreeDir := filepath.Join(worktreeRoot, entry.Name())
		statePath := filepath.Join(worktreeDir, ".ralph", "state.toml")

		st, err := state.Load(statePath)
		if err != nil {
			continue
		}

		bs := branchStatus{
			Branch:    st.Branch,
			Mode:      string(st.Mode),
			Iteration: st.Iteration,
			LastError: st.LastError,
			Promise:   st.CompletionPromise,
		}
		if pid, _, alive, err := lock.Holder(scheduler.LockPath(rootDir, entry.Name())); err == nil && alive {
			bs.Active = true
			bs.HolderPID = pid
		}
		statuses = append(statuses, bs)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Branch < statuses[j].Branch })
	return statuses, nil
}

func printStatuses(statuses []branchStatus) {
	if len(statuses) == 0 {
		fmt.Println("no branch worktrees found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tACTIVE\tMODE\tITERATION\tLAST ERROR\tPROMISE")
	for _, s := range statuses {
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		promise := s.Promise
		if promise == "" {
			promise = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\t%s\n",
			s.Branch, s.Active, s.Mode, s.Iteration, truncate(lastErr, 40), promise)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
