// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate converts a validator exit code into a
// next-iteration prompt addendum — the system's sole backpressure
// mechanism between an agent's claim of completion and the next call.
package validate
