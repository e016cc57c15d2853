// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentdriver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Claude invokes the claude CLI with the prompt delivered on standard
// input.
type Claude struct {
	// BinaryPath is the resolved path (or bare name, relying on PATH)
	// of the claude binary.
	BinaryPath string
	// Model is passed via --model when non-empty.
	Model string
	// OutputFormat selects claude's --output-format (e.g. "text" or
	// "stream-json").
	OutputFormat string
	// PermissionBypass, when true, adds the flag that lets claude run
	// without interactive tool-use confirmation — required since ralph
	// drives the CLI non-interactively inside (or without) a sandbox.
	PermissionBypass bool
	// Verbose adds --verbose, useful when OutputFormat is a streaming
	// format that otherwise suppresses intermediate tool-call detail.
	Verbose bool
}

// Name implements Driver.
func (c *Claude) Name() string { return "claude" }

// Invoke implements Driver. The prompt is written to the child's
// stdin rather than passed as an argument, avoiding argv length limits
// and shell-quoting concerns for large prompts built from validator
// output.
func (c *Claude) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args := []string{"--print"}
	if c.PermissionBypass {
		args = append(args, "--dangerously-skip-permissions")
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if c.OutputFormat != "" {
		args = append(args, "--output-format", c.OutputFormat)
	}
	if c.Verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	cmd.Dir = inv.WorkDir
	cmd.Stdin = strings.NewReader(inv.Prompt)

	return runCommand(ctx, cmd, c.BinaryPath)
}

// Argv implements Driver. Unlike Invoke, which writes the prompt to
// stdin, Argv appends it as the final positional argument: a sandbox
// session's Exec has no stdin channel to the container, so the
// sandboxed path always delivers the prompt through argv.
func (c *Claude) Argv(inv Invocation) []string {
	args := []string{c.BinaryPath, "--print"}
	if c.PermissionBypass {
		args = append(args, "--dangerously-skip-permissions")
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if c.OutputFormat != "" {
		args = append(args, "--output-format", c.OutputFormat)
	}
	if c.Verbose {
		args = append(args, "--verbose")
	}
	args = append(args, inv.Prompt)
	return args
}

// CheckInstalled resolves the binary on PATH, classifying a missing
// binary as KindAgentNotFound the same way a failed Invoke would.
func (c *Claude) CheckInstalled() error {
	path, err := exec.LookPath(c.BinaryPath)
	if err != nil {
		return &Error{Kind: KindAgentNotFound, Err: fmt.Errorf("claude not found: %w", err)}
	}
	c.BinaryPath = path
	return nil
}
