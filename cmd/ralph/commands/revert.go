// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/git"
)

type revertParams struct {
	Last int `flag:"last" desc:"number of commits to undo" default:"1"`
}

func revertCommand() *cli.Command {
	params := &revertParams{}

	return &cli.Command{
		Name:    "revert",
		Summary: "Undo the last N commits on the current branch",
		Description: `Runs a hard reset to HEAD~N in the current worktree. Intended to be
run from inside a branch's worktree (.worktrees/<branch>/) to discard
commits an agent made that turned out to be wrong.`,
		Usage: "ralph revert [--last N]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("revert", params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("revert takes no positional arguments, got %q", args[0])
			}
			if params.Last <= 0 {
				return fmt.Errorf("--last must be positive, got %d", params.Last)
			}

			cwd, err := currentDir()
			if err != nil {
				return err
			}

			repo := git.NewRepository(cwd)
			if err := repo.Revert(context.Background(), params.Last); err != nil {
				return fmt.Errorf("reverting: %w", err)
			}
			fmt.Printf("reverted %d commit(s)\n", params.Last)
			return nil
		},
	}
}
