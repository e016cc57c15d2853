// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loop implements the per-branch iteration state machine
// (PrepIter, RunAgent, Validate, PostIter) that drives one worktree's
// agent to a terminal condition.
package loop
