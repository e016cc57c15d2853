// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralph-dev/ralph/internal/lock"
	"github.com/ralph-dev/ralph/internal/sandbox"
)

// CleanResult reports what Clean removed.
type CleanResult struct {
	RemovedWorktrees  []string
	RemovedContainers []string
}

// Clean removes state left behind by aborted runs: orphaned sandbox
// containers always, and — when worktrees is set — every worktree
// under .worktrees/ that is not currently locked by a live FSM.
func (s *Scheduler) Clean(ctx context.Context, worktrees bool) (CleanResult, error) {
	var result CleanResult

	if rt, err := sandbox.DetectRuntime(); err == nil {
		removed, err := sandbox.CleanOrphans(ctx, rt, filepath.Join(s.rootDir, ".ralph", "locks"))
		if err != nil {
			return result, fmt.Errorf("cleaning orphan containers: %w", err)
		}
		result.RemovedContainers = removed
	}

	if !worktrees {
		return result, nil
	}

	entries, err := os.ReadDir(s.worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("reading worktree directory: %w", err)
	}

	lockPath := filepath.Join(s.rootDir, ".ralph", "git.lock")
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		worktreePath := filepath.Join(s.worktreeRoot, entry.Name())
		if lock.IsHeld(LockPath(s.rootDir, entry.Name())) {
			continue
		}
		if err := s.repo.WorktreeRemove(ctx, lockPath, worktreePath, true); err != nil {
			return result, fmt.Errorf("removing worktree %s: %w", entry.Name(), err)
		}
		result.RemovedWorktrees = append(result.RemovedWorktrees, entry.Name())
	}

	return result, nil
}
