// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentdriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeBinary writes an executable shell script to dir/name that
// prints stdout, writes stderr, and exits with code. Used to exercise
// the adapters' classification logic without a real agent CLI present.
func writeFakeBinary(t *testing.T, dir, name, stdout, stderr string, code int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n"
	if stdout != "" {
		script += "printf '%s' " + shellQuote(stdout) + "\n"
	}
	if stderr != "" {
		script += "printf '%s' " + shellQuote(stderr) + " >&2\n"
	}
	script += "exit " + itoa(code) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}
	return path
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestCursor_Invoke_Success(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "cursor-agent", "all good", "", 0)

	c := &Cursor{BinaryPath: bin}
	result, err := c.Invoke(context.Background(), Invocation{Prompt: "do the thing", WorkDir: dir})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Output != "all good" {
		t.Errorf("Output = %q, want %q", result.Output, "all good")
	}
}

func TestCursor_Invoke_RateLimited(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "cursor-agent", "", "error: rate limit exceeded", 1)

	c := &Cursor{BinaryPath: bin}
	_, err := c.Invoke(context.Background(), Invocation{Prompt: "x", WorkDir: dir})
	if AsKind(err) != KindRateLimited {
		t.Fatalf("AsKind(err) = %v, want KindRateLimited", AsKind(err))
	}
}

func TestCursor_Invoke_TransportError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "cursor-agent", "", "connection refused", 1)

	c := &Cursor{BinaryPath: bin}
	_, err := c.Invoke(context.Background(), Invocation{Prompt: "x", WorkDir: dir})
	if AsKind(err) != KindTransportError {
		t.Fatalf("AsKind(err) = %v, want KindTransportError", AsKind(err))
	}
}

func TestCursor_Invoke_GenericFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "cursor-agent", "", "something broke", 1)

	c := &Cursor{BinaryPath: bin}
	_, err := c.Invoke(context.Background(), Invocation{Prompt: "x", WorkDir: dir})
	if AsKind(err) != KindAgentFailure {
		t.Fatalf("AsKind(err) = %v, want KindAgentFailure", AsKind(err))
	}
}

func TestCursor_Invoke_NotFound(t *testing.T) {
	t.Parallel()
	c := &Cursor{BinaryPath: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := c.Invoke(context.Background(), Invocation{Prompt: "x", WorkDir: t.TempDir()})
	if AsKind(err) != KindAgentNotFound {
		t.Fatalf("AsKind(err) = %v, want KindAgentNotFound", AsKind(err))
	}
}

func TestCursor_Invoke_Timeout(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cursor-agent")
	script := "#!/bin/sh\nsleep 5\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}

	c := &Cursor{BinaryPath: path}
	_, err := c.Invoke(context.Background(), Invocation{
		Prompt: "x", WorkDir: dir, Timeout: 50 * time.Millisecond,
	})
	if AsKind(err) != KindAgentTimeout {
		t.Fatalf("AsKind(err) = %v, want KindAgentTimeout", AsKind(err))
	}
}

func TestClaude_Invoke_Success(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Echo stdin back so we can confirm the prompt travels on stdin,
	// not argv.
	path := filepath.Join(dir, "claude")
	script := "#!/bin/sh\ncat\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}

	c := &Claude{BinaryPath: path, PermissionBypass: true}
	result, err := c.Invoke(context.Background(), Invocation{Prompt: "hello from stdin", WorkDir: dir})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Output != "hello from stdin" {
		t.Errorf("Output = %q, want %q", result.Output, "hello from stdin")
	}
}

func TestClaude_Invoke_RateLimited(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "claude", "", "429 Too Many Requests", 1)

	c := &Claude{BinaryPath: bin}
	_, err := c.Invoke(context.Background(), Invocation{Prompt: "x", WorkDir: dir})
	if AsKind(err) != KindRateLimited {
		t.Fatalf("AsKind(err) = %v, want KindRateLimited", AsKind(err))
	}
}

func TestSelect_Priority(t *testing.T) {
	if got := Select("cursor", "claude", "claude"); got != "cursor" {
		t.Errorf("Select with explicit flag = %q, want cursor", got)
	}
	if got := Select("", "claude", "cursor"); got != "claude" {
		t.Errorf("Select with env fallback = %q, want claude", got)
	}
	if got := Select("", "", "cursor"); got != "cursor" {
		t.Errorf("Select with config fallback = %q, want cursor", got)
	}
}
