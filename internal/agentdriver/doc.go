// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentdriver invokes the configured agent program once per
// iteration and captures its output, classifying failures into the
// taxonomy the iteration FSM acts on.
package agentdriver
