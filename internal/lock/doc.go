// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lock implements the single-writer advisory lock that backs
// LoopState.Active: at most one process may hold the lock on a given
// branch's state file at a time, and a lock whose holder has crashed
// is distinguishable from one still in use.
package lock
