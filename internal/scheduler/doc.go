// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler fans a parsed plan out across one iteration FSM
// per branch: materializing worktrees, running branches sequentially
// or concurrently, and aggregating terminal results.
package scheduler
