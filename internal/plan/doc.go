// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan implements the markdown plan format: [Parse] extracts a
// [Plan] from IMPLEMENTATION_PLAN.md, [Render] serializes one back.
package plan
