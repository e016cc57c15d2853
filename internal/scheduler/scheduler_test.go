// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralph-dev/ralph/internal/config"
	"github.com/ralph-dev/ralph/internal/git"
	"github.com/ralph-dev/ralph/internal/loop"
	"github.com/ralph-dev/ralph/internal/plan"
	"github.com/ralph-dev/ralph/internal/state"
)

const planBody = `## Branch: feat/one

Do the thing.

- [ ] implement widget
`

// initPlanRepo creates a bare repo with a "main" worktree seeded with
// a plan document and prompt templates, so WorktreeAdd'd branches
// inherit everything a scheduler run needs.
func initPlanRepo(t *testing.T) (bareDir, rootDir string) {
	t.Helper()
	rootDir = t.TempDir()
	bareDir = filepath.Join(rootDir, ".bare")

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "--bare", bareDir)
	mainDir := filepath.Join(rootDir, "main")
	run("-C", bareDir, "worktree", "add", mainDir, "--orphan", "-b", "main")

	if err := os.WriteFile(filepath.Join(mainDir, "IMPLEMENTATION_PLAN.md"), []byte(planBody), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mainDir, "PROMPT_build.md"), []byte("do the next thing\n"), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	run("-C", mainDir, "add", "-A")
	commitCmd := exec.Command("git", "-C", mainDir, "commit", "-m", "initial")
	commitCmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.local")
	if out, err := commitCmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	return bareDir, rootDir
}

func fakeAgentBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	script := "#!/bin/sh\ncat >/dev/null\nprintf 'RALPH_COMPLETE: done\\n'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake agent: %v", err)
	}
	return path
}

func testConfig(t *testing.T, agentPath string) *config.Config {
	cfg := config.Default()
	cfg.Agent.Provider = config.ProviderClaude
	cfg.Agent.Claude.Path = agentPath
	cfg.Sandbox.Enabled = false
	cfg.Validation.Enabled = false
	cfg.Monitoring.ShowProgress = false
	cfg.Monitoring.LogFile = filepath.Join(t.TempDir(), "loop.log")
	cfg.Git.AutoPush = false
	cfg.Git.AutoPR = false
	cfg.Git.PRBase = "main"
	cfg.Completion.IdleThreshold = 2
	cfg.Monitoring.MaxConsecutiveErrors = 5
	return cfg
}

func TestScheduler_Run_SingleBranch_PromiseMatched(t *testing.T) {
	t.Setenv("RALPH_PROVIDER", "")
	bareDir, rootDir := initPlanRepo(t)
	repo := git.NewRepository(bareDir)
	cfg := testConfig(t, fakeAgentBinary(t))

	sched := New(cfg, repo, rootDir)
	results, err := sched.Run(context.Background(), filepath.Join(rootDir, "main", "IMPLEMENTATION_PLAN.md"),
		Options{Mode: state.ModeBuild, Promise: "RALPH_COMPLETE: done"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("branch error: %v", r.Err)
	}
	if r.Branch != "feat/one" {
		t.Errorf("branch = %q", r.Branch)
	}
	if r.Reason != loop.ReasonPromiseMatched {
		t.Errorf("reason = %q, want %q", r.Reason, loop.ReasonPromiseMatched)
	}
}

func TestScheduler_Run_NoActiveBranches(t *testing.T) {
	rootDir := t.TempDir()
	bareDir := filepath.Join(rootDir, ".bare")
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "--bare", bareDir)
	mainDir := filepath.Join(rootDir, "main")
	run("-C", bareDir, "worktree", "add", mainDir, "--orphan", "-b", "main")

	doneplan := "## Branch: feat/done\n\n- [x] already finished\n"
	if err := os.WriteFile(filepath.Join(mainDir, "IMPLEMENTATION_PLAN.md"), []byte(doneplan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	run("-C", mainDir, "add", "-A")
	commitCmd := exec.Command("git", "-C", mainDir, "commit", "-m", "initial")
	commitCmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@test.local")
	if out, err := commitCmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	repo := git.NewRepository(bareDir)
	cfg := testConfig(t, fakeAgentBinary(t))
	sched := New(cfg, repo, rootDir)

	results, err := sched.Run(context.Background(), filepath.Join(mainDir, "IMPLEMENTATION_PLAN.md"), Options{Mode: state.ModeBuild})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil (no branch has unchecked tasks)", results)
	}
}

func TestHasUnchecked(t *testing.T) {
	allDone := plan.Branch{Tasks: []plan.Task{{Done: true}}}
	if hasUnchecked(allDone) {
		t.Error("hasUnchecked(all done) = true")
	}
	mixed := plan.Branch{Tasks: []plan.Task{{Done: true}, {Done: false}}}
	if !hasUnchecked(mixed) {
		t.Error("hasUnchecked(mixed) = false")
	}
}

func TestSummary_RendersTable(t *testing.T) {
	results := []BranchResult{
		{Branch: "feat/a", Reason: loop.ReasonMaxReached, Iterations: 3, LastCommit: "abc123"},
		{Branch: "feat/b", Reason: loop.ReasonPromiseMatched, Iterations: 1},
	}
	out := Summary(results)
	for _, want := range []string{"feat/a", "feat/b", "max_reached", "promise_matched"} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary output missing %q:\n%s", want, out)
		}
	}
}
