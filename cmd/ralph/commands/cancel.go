// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/lock"
	"github.com/ralph-dev/ralph/internal/scheduler"
)

type cancelParams struct {
	Config string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
}

func cancelCommand() *cli.Command {
	params := &cancelParams{}

	return &cli.Command{
		Name:    "cancel",
		Summary: "Signal every active loop to stop at its next terminal check",
		Description: `Finds every worktree whose advisory lock is held by a live process
and sends it SIGINT, the same signal an operator's Ctrl-C would send.
Each loop observes ctx.Err() at its next terminal check and stops with
ReasonCancelled once that iteration's in-flight step completes.`,
		Usage: "ralph cancel [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cancel", params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("cancel takes no positional arguments, got %q", args[0])
			}

			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}

			signalled, err := cancelActiveLoops(rc.rootDir)
			if err != nil {
				return err
			}
			if len(signalled) == 0 {
				fmt.Println("no active loops found")
				return nil
			}
			for _, branch := range signalled {
				fmt.Printf("cancelled %s\n", branch)
			}
			return nil
		},
	}
}

func cancelActiveLoops(rootDir string) ([]string, error) {
	worktreeRoot := filepath.Join(rootDir, ".worktrees")
	entries, err := os.ReadDir(worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", worktreeRoot, err)
	}

	var signalled []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, _, alive, err := lock.Holder(scheduler.LockPath(rootDir, entry.Name()))
		if err != nil || !alive {
			continue
		}
		process, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := process.Signal(syscall.SIGINT); err != nil {
			continue
		}
		signalled = append(signalled, entry.Name())
	}
	return signalled, nil
}
