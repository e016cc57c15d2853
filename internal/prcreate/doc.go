// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package prcreate opens a pull request for a finished branch via the
// gh CLI, the same subprocess-wrapping idiom internal/git and lib/nix
// use for their own external tools.
package prcreate
