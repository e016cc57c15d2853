// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for worktree
// management: each per-branch FSM owns an independent working tree,
// with its own commit identity, sharing one underlying repository. All
// commands target a specific directory via the -C flag, automatically
// injected by every Repository method — the same idiom the bureau
// tmux/git wrappers use for their own server/repository flags.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git repository (or worktree of one) at a
// specific directory. There is no default directory — callers always
// specify which repository or worktree they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunLocked executes a git command with flock(1) serialization. The
// lock file at lockPath is held for the command's duration, preventing
// concurrent git operations against the same underlying repository
// (e.g. two worktrees' FSMs both invoking `git worktree add` at once).
func (r *Repository) RunLocked(ctx context.Context, lockPath string, args ...string) (string, error) {
	gitArgs := append([]string{"-C", r.dir}, args...)
	flockArgs := append([]string{lockPath, "git"}, gitArgs...)

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "flock", flockArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String() + stderr.String()), nil
}

// Command returns an *exec.Cmd for a git command without running it.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// WorktreeAdd creates a new worktree at path for branch. If the branch
// does not yet exist in the repository, it is created from base. The
// lockPath serializes this call against any other worktree operation
// on the same underlying repository.
func (r *Repository) WorktreeAdd(ctx context.Context, lockPath, path, branch, base string) error {
	exists, err := r.branchExists(ctx, branch)
	if err != nil {
		return err
	}

	var args []string
	if exists {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path, base}
	}
	_, err = r.RunLocked(ctx, lockPath, args...)
	return err
}

// WorktreeRemove removes the worktree at path, passing --force when
// force is set. The worktree's branch is left in place. Used by
// `ralph clean` to tear down worktrees left behind by aborted runs.
func (r *Repository) WorktreeRemove(ctx context.Context, lockPath, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.RunLocked(ctx, lockPath, args...)
	return err
}

func (r *Repository) branchExists(ctx context.Context, branch string) (bool, error) {
	_, err := r.Run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	// show-ref exits non-zero both for "ref not found" and for real
	// errors; since Run only reports exec/exit failures, we treat any
	// failure here as "branch does not exist" — the subsequent
	// worktree add will surface a real error if this guess is wrong.
	return false, nil
}

// SetWorktreeConfig applies commit identity (and optionally a signing
// key and SSH key) to this worktree's local configuration only,
// leaving the shared repository and other worktrees untouched. Uses
// extensions.worktreeConfig so `git config --worktree` scopes to this
// checkout.
func (r *Repository) SetWorktreeConfig(ctx context.Context, name, email, signingKey, sshKey string) error {
	if _, err := r.Run(ctx, "config", "extensions.worktreeConfig", "true"); err != nil {
		return fmt.Errorf("enabling worktree config: %w", err)
	}

	settings := [][2]string{
		{"user.name", name},
		{"user.email", email},
	}
	if signingKey != "" {
		settings = append(settings,
			[2]string{"user.signingkey", signingKey},
			[2]string{"commit.gpgsign", "true"},
		)
	}
	if sshKey != "" {
		settings = append(settings,
			[2]string{"core.sshCommand", "ssh -i " + sshKey + " -o IdentitiesOnly=yes"},
		)
	}

	for _, kv := range settings {
		if kv[1] == "" {
			continue
		}
		if _, err := r.Run(ctx, "config", "--worktree", kv[0], kv[1]); err != nil {
			return fmt.Errorf("setting worktree config %s: %w", kv[0], err)
		}
	}
	return nil
}

// HeadCommit returns the current HEAD commit hash of this worktree.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Log returns the subject line of the given commit, used for the
// progress panel's "most recent commit's subject" field.
func (r *Repository) Log(ctx context.Context, commit string) (string, error) {
	out, err := r.Run(ctx, "log", "-1", "--format=%s", commit)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Push pushes the current branch to its remote tracking branch.
// Callers must check IsProtectedBranch before calling — Push itself
// performs no protected-branch check, keeping that policy decision at
// the FSM boundary as the error-handling design requires.
func (r *Repository) Push(ctx context.Context, lockPath, remote, branch string) error {
	_, err := r.RunLocked(ctx, lockPath, "push", remote, branch)
	return err
}

// Revert undoes the last n commits on the current branch with `git
// reset --hard HEAD~n`. Used by `ralph revert`.
func (r *Repository) Revert(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("revert count must be positive, got %d", n)
	}
	_, err := r.Run(ctx, "reset", "--hard", fmt.Sprintf("HEAD~%d", n))
	return err
}

// IsProtectedBranch reports whether branch appears in the configured
// protected-branches list. Pure string comparison, no VCS call: the
// policy is enforced at the FSM boundary without consulting git.
func IsProtectedBranch(branch string, protected []string) bool {
	for _, b := range protected {
		if b == branch {
			return true
		}
	}
	return false
}
