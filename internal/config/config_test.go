// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent.Provider != ProviderClaude {
		t.Errorf("expected provider=claude, got %s", cfg.Agent.Provider)
	}

	if cfg.Completion.IdleThreshold != 2 {
		t.Errorf("expected idle_threshold=2, got %d", cfg.Completion.IdleThreshold)
	}

	if !cfg.Sandbox.Enabled {
		t.Error("expected sandbox.enabled=true by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config failed Validate(): %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ralph.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[agent]
provider = "cursor"

[completion]
idle_threshold = 5

[validation]
enabled = true
command = "go test ./..."
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Provider != ProviderCursor {
		t.Errorf("provider = %q, want cursor", cfg.Agent.Provider)
	}
	if cfg.Completion.IdleThreshold != 5 {
		t.Errorf("idle_threshold = %d, want 5", cfg.Completion.IdleThreshold)
	}
	if !cfg.Validation.Enabled || cfg.Validation.Command != "go test ./..." {
		t.Errorf("validation = %+v, want enabled with command", cfg.Validation)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitoring.LogRotation != RotationDaily {
		t.Errorf("log_rotation = %q, want default daily", cfg.Monitoring.LogRotation)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[agent]
provider = "claude"
nonexistent_field = true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_RejectsBadIdleThreshold(t *testing.T) {
	cfg := Default()
	cfg.Completion.IdleThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for idle_threshold=0")
	}
}

func TestValidate_RequiresValidationCommand(t *testing.T) {
	cfg := Default()
	cfg.Validation.Enabled = true
	cfg.Validation.Command = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled validation with empty command")
	}
}

func TestIsProtectedBranch(t *testing.T) {
	cfg := Default()
	if !cfg.IsProtectedBranch("main") {
		t.Error("expected main to be protected by default")
	}
	if cfg.IsProtectedBranch("feat/x") {
		t.Error("expected feat/x to not be protected")
	}
}
