// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox provides the isolated execution environment the
// iteration FSM runs the agent inside: resolve or build an image,
// create and start a container, apply the configured network policy,
// exec the agent invocation, and dispose of (or reuse) the container.
package sandbox
