// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentdriver

import (
	"context"
	"fmt"
	"os/exec"
)

// Cursor invokes the cursor-agent CLI with the prompt delivered as a
// command-line argument.
type Cursor struct {
	// BinaryPath is the resolved path (or bare name, relying on PATH)
	// of the cursor-agent binary.
	BinaryPath string
	// Model is passed via --model when non-empty.
	Model string
	// OutputFormat selects cursor-agent's --output-format (e.g.
	// "text" or "json").
	OutputFormat string
}

// Name implements Driver.
func (c *Cursor) Name() string { return "cursor" }

// Invoke implements Driver. cursor-agent is launched in print mode
// with its own sandboxing disabled — ralph's sandbox controller is the
// one sandbox in effect — and the prompt passed as the final argument.
func (c *Cursor) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	argv := c.Argv(inv)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.WorkDir

	return runCommand(ctx, cmd, c.BinaryPath)
}

// Argv implements Driver. cursor-agent takes the prompt as a
// positional argument regardless of execution boundary, so this is
// exactly the argument list Invoke also builds.
func (c *Cursor) Argv(inv Invocation) []string {
	args := []string{c.BinaryPath, "--print", "--no-sandbox"}
	if c.OutputFormat != "" {
		args = append(args, "--output-format", c.OutputFormat)
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	args = append(args, inv.Prompt)
	return args
}

// CheckInstalled resolves the binary on PATH, classifying a missing
// binary as KindAgentNotFound the same way a failed Invoke would.
func (c *Cursor) CheckInstalled() error {
	path, err := exec.LookPath(c.BinaryPath)
	if err != nil {
		return &Error{Kind: KindAgentNotFound, Err: fmt.Errorf("cursor-agent not found: %w", err)}
	}
	c.BinaryPath = path
	return nil
}
