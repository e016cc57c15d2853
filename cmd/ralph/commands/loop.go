// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/agentdriver"
	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/loop"
	"github.com/ralph-dev/ralph/internal/scheduler"
	"github.com/ralph-dev/ralph/internal/state"
)

type loopParams struct {
	Config            string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
	Plan              string `flag:"plan" desc:"path to the plan document" default:"IMPLEMENTATION_PLAN.md"`
	MaxIterations     int64  `flag:"max-iterations" desc:"stop each branch after N iterations"`
	Unlimited         bool   `flag:"unlimited" desc:"never stop on iteration count"`
	CompletionPromise string `flag:"completion-promise" desc:"stop a branch once the agent's output contains this text"`
	Provider          string `flag:"provider" desc:"agent provider: cursor or claude (overrides config and $RALPH_PROVIDER)"`
	NoSandbox         bool   `flag:"no-sandbox" desc:"run the agent directly on the host, skipping the container"`
	Prompt            string `flag:"prompt" desc:"prompt file to use instead of PROMPT_<mode>.md"`
	Sequential        bool   `flag:"sequential" desc:"run branches one at a time instead of concurrently"`
}

func loopCommand() *cli.Command {
	params := &loopParams{}

	return &cli.Command{
		Name:    "loop",
		Summary: "Drive the iteration FSM(s) for every active branch in the plan",
		Description: `Parses IMPLEMENTATION_PLAN.md, materializes one worktree per branch
with at least one unchecked task, and drives each branch's agent loop
to a terminal condition: the iteration cap, idle completion, the
circuit breaker, or a matched completion promise.

mode selects which prompt template drives the agent: "plan" loads
PROMPT_plan.md, "build" loads PROMPT_build.md.`,
		Usage: "ralph loop <plan|build> [flags]",
		Examples: []cli.Example{
			{Description: "Drive every branch to completion", Command: "ralph loop build --unlimited"},
			{Description: "Cap each branch at 20 iterations", Command: "ralph loop build --max-iterations 20"},
			{Description: "Run branches one at a time", Command: "ralph loop build --sequential"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("loop", params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("loop requires exactly one mode argument: plan or build")
			}
			var mode state.Mode
			switch args[0] {
			case "plan":
				mode = state.ModePlan
			case "build":
				mode = state.ModeBuild
			default:
				return fmt.Errorf("unknown loop mode %q: want plan or build", args[0])
			}

			if params.Provider != "" && params.Provider != "cursor" && params.Provider != "claude" {
				return exitErrorf(1, "--provider must be cursor or claude, got %q", params.Provider)
			}

			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}

			opts := scheduler.Options{
				Mode:       mode,
				Provider:   params.Provider,
				Sequential: params.Sequential,
				NoSandbox:  params.NoSandbox,
				Unlimited:  params.Unlimited,
				Promise:    params.CompletionPromise,
				PromptPath: params.Prompt,
			}
			if params.MaxIterations > 0 {
				n := uint64(params.MaxIterations)
				opts.MaxIterations = &n
			}

			planPath := params.Plan
			if !filepath.IsAbs(planPath) {
				planPath = filepath.Join(rc.rootDir, planPath)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(rc.cfg, rc.repo, rc.rootDir)
			results, runErr := sched.Run(ctx, planPath, opts)
			if len(results) > 0 {
				fmt.Print(scheduler.Summary(results))
			}
			return exitCodeForResults(ctx, results, runErr)
		},
	}
}

// exitCodeForResults maps the scheduler's aggregate outcome onto the
// process exit codes the external interface promises: operator
// cancellation wins over any other branch-level outcome, then the
// highest-severity per-branch condition (agent-not-found, circuit
// tripped), and otherwise 0.
func exitCodeForResults(ctx context.Context, results []scheduler.BranchResult, runErr error) error {
	if runErr != nil {
		return fmt.Errorf("scheduler: %w", runErr)
	}
	if ctx.Err() != nil {
		return exitErrorf(130, "cancelled by operator")
	}

	for _, r := range results {
		if r.Reason == loop.ReasonCancelled {
			return exitErrorf(130, "branch %s: cancelled by operator", r.Branch)
		}
	}
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		var driverErr *agentdriver.Error
		if errors.As(r.Err, &driverErr) && driverErr.Kind == agentdriver.KindAgentNotFound {
			return exitErrorf(2, "branch %s: %v", r.Branch, r.Err)
		}
		return exitErrorf(1, "branch %s: %v", r.Branch, r.Err)
	}
	for _, r := range results {
		if r.Reason == loop.ReasonCircuitTripped {
			return exitErrorf(4, "branch %s: circuit tripped after %d completed iterations", r.Branch, r.Iterations)
		}
	}
	return nil
}
