// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git wraps the git CLI for the operations the scheduler and
// iteration FSM need: worktree creation, per-worktree commit identity,
// HEAD inspection for idle detection, push, and revert.
package git
