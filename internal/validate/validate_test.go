// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunner_Run_Passes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRunner("exit 0")
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Passed {
		t.Error("Passed = false, want true")
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestRunner_Run_Fails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRunner("echo 'test failed: widget_test.go:12' >&2; exit 1")
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.Output, "widget_test.go:12") {
		t.Errorf("Output = %q, missing expected failure line", result.Output)
	}
}

func TestRunner_Run_UsesWorkdir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	r := NewRunner("test -f marker")
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Passed {
		t.Error("Passed = false, want true (marker file should be visible in workdir)")
	}
}

func TestResult_FirstLines(t *testing.T) {
	result := Result{Output: "one\ntwo\nthree\nfour\nfive\nsix\n"}
	got := result.FirstLines(5)
	want := "one\ntwo\nthree\nfour\nfive"
	if got != want {
		t.Errorf("FirstLines(5) = %q, want %q", got, want)
	}
}

func TestResult_FirstLines_FewerThanN(t *testing.T) {
	result := Result{Output: "only\ntwo"}
	got := result.FirstLines(5)
	if got != "only\ntwo" {
		t.Errorf("FirstLines(5) = %q, want %q", got, "only\ntwo")
	}
}

func TestAppendFailure(t *testing.T) {
	result := Result{Output: "FAIL: TestFoo\n", ExitCode: 1}
	prompt := AppendFailure("Implement the widget.", result)

	if !strings.Contains(prompt, "Implement the widget.") {
		t.Error("prompt missing base prompt text")
	}
	if !strings.Contains(prompt, delimiterHeader) {
		t.Error("prompt missing delimiter header")
	}
	if !strings.Contains(prompt, "```\nFAIL: TestFoo\n```") {
		t.Errorf("prompt missing fenced verbatim block: %q", prompt)
	}
	if !strings.Contains(prompt, fixInstruction) {
		t.Error("prompt missing fix instruction")
	}
}

func TestHasPendingFailure(t *testing.T) {
	result := Result{Output: "boom"}
	appended := AppendFailure("base", result)
	if !HasPendingFailure(appended) {
		t.Error("HasPendingFailure = false, want true")
	}
	if HasPendingFailure("base prompt with no failure") {
		t.Error("HasPendingFailure = true, want false")
	}
}

func TestCheckAvailable_Missing(t *testing.T) {
	if err := CheckAvailable("definitely-not-a-real-command-xyz"); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestCheckAvailable_Present(t *testing.T) {
	if err := CheckAvailable("sh -c true"); err != nil {
		t.Errorf("CheckAvailable(sh ...): %v", err)
	}
}

func TestCheckAvailable_Empty(t *testing.T) {
	if err := CheckAvailable(""); err != nil {
		t.Errorf("CheckAvailable(empty): %v", err)
	}
}
