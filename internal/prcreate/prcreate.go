// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prcreate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Request describes the pull request to open.
type Request struct {
	// Dir is the worktree directory gh should run from.
	Dir    string
	Base   string
	Head   string
	Title  string
	Body   string
	Draft  bool
}

// Create opens a pull request with `gh pr create` and returns the
// created PR's URL. Callers are responsible for only calling Create
// after a branch reaches a terminal state — never on Cancelled, per the
// completion contract. The scheduler calls it for every other terminal
// reason, circuit_tripped included.
func Create(ctx context.Context, req Request) (string, error) {
	args := []string{"pr", "create",
		"--base", req.Base,
		"--head", req.Head,
		"--title", req.Title,
		"--body", req.Body,
	}
	if req.Draft {
		args = append(args, "--draft")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = req.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh pr create: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CheckAvailable reports whether the gh binary is on PATH. The
// scheduler does not call it; with auto_pr enabled and gh missing,
// Create fails at the first finished branch and no PR URL is recorded.
func CheckAvailable() error {
	_, err := exec.LookPath("gh")
	if err != nil {
		return fmt.Errorf("gh CLI not found: %w", err)
	}
	return nil
}
