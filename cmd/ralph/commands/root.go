// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the ralph CLI's command tree and
// implements each verb's Run function, translating the supervisor's
// error taxonomy into the process exit codes ralph's external
// interface promises.
package commands

import (
	"fmt"

	"github.com/ralph-dev/ralph/internal/cli"
)

// Root returns the top-level "ralph" command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "ralph",
		Summary: "Supervise autonomous coding agents across branch worktrees",
		Description: `ralph drives an external AI agent through a long sequence of
iterations against a working repository: it applies backpressure via a
user-supplied validation command, isolates each invocation inside a
disposable container, and coordinates parallel work across multiple
branch worktrees. Launch it against a plan and walk away — it decides
when to continue, retry, back off, give up, or declare completion.`,
		Usage: "ralph <command> [flags]",
		Examples: []cli.Example{
			{Description: "Bootstrap config and templates", Command: "ralph init"},
			{Description: "Drive every branch in the plan to completion", Command: "ralph loop build --unlimited"},
			{Description: "Check on running branches", Command: "ralph status"},
		},
		Subcommands: []*cli.Command{
			initCommand(),
			loopCommand(),
			statusCommand(),
			cancelCommand(),
			revertCommand(),
			cleanCommand(),
			imageCommand(),
		},
	}
}

// exitError pairs a human-readable error with a specific process exit
// code, per the exit code table: 1 configuration error, 2
// agent-not-found, 3 sandbox-create-failure, 4 circuit tripped, 130
// cancelled by operator.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func exitErrorf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}
