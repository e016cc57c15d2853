// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists and reloads a branch's LoopState across
// restarts. See [LoopState] for the full field set and [Save]/[Load]
// for the atomic read/write contract.
package state
