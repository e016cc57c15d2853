// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress renders the in-terminal iteration dashboard.
package progress
