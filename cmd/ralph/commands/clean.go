// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/scheduler"
)

type cleanParams struct {
	Config    string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
	All       bool   `flag:"all" desc:"remove worktrees as well as containers"`
	Worktrees bool   `flag:"worktrees" desc:"remove worktrees as well as containers"`
}

func cleanCommand() *cli.Command {
	params := &cleanParams{}

	return &cli.Command{
		Name:    "clean",
		Summary: "Remove orphaned sandbox containers and, optionally, worktrees",
		Description: `Removes sandbox containers whose owning branch is no longer running
(no live process holds its advisory lock). --worktrees additionally
removes worktrees under .worktrees/ in the same condition. --all is
shorthand for --worktrees.`,
		Usage: "ralph clean [--all] [--worktrees]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("clean", params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("clean takes no positional arguments, got %q", args[0])
			}

			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}

			sched := scheduler.New(rc.cfg, rc.repo, rc.rootDir)
			result, err := sched.Clean(context.Background(), params.All || params.Worktrees)
			if err != nil {
				return fmt.Errorf("clean: %w", err)
			}

			for _, c := range result.RemovedContainers {
				fmt.Printf("removed container %s\n", c)
			}
			for _, w := range result.RemovedWorktrees {
				fmt.Printf("removed worktree %s\n", w)
			}
			if len(result.RemovedContainers) == 0 && len(result.RemovedWorktrees) == 0 {
				fmt.Println("nothing to clean")
			}
			return nil
		},
	}
}
