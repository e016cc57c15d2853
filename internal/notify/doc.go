// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify dispatches terminal-complete and on-error
// notifications through a configured backend.
package notify
