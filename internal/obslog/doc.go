// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package obslog is the append-only structured event log.
package obslog
