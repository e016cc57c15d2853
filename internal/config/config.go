// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads ralph's declarative configuration file.
//
// Configuration is loaded from a single file, resolved in order:
//   - the --config flag, if the caller supplies a path, else
//   - ./ralph.toml in the current working directory.
//
// There are no other fallbacks or automatic discovery. Load itself never
// reads environment variables; the one exception applied afterwards is
// RALPH_PROVIDER, which outranks agent.provider from the file and is in
// turn outranked by the --provider flag (see agentdriver.Select). Other
// CLI flags are layered on after Load returns. This keeps configuration deterministic
// and auditable, the same guarantee the config package this one is
// descended from made for its own YAML-based format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// AgentProvider names one of the supported agent CLI variants.
type AgentProvider string

const (
	ProviderCursor AgentProvider = "cursor"
	ProviderClaude AgentProvider = "claude"
)

// NetworkPolicy names one of the supported sandbox network policies.
type NetworkPolicy string

const (
	NetworkAllowAll   NetworkPolicy = "allow-all"
	NetworkDeny       NetworkPolicy = "deny"
	NetworkAllowlist  NetworkPolicy = "allowlist"
)

// LogFormat names the structured log encoding.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LogRotation names the log rotation cadence.
type LogRotation string

const (
	RotationDaily  LogRotation = "daily"
	RotationHourly LogRotation = "hourly"
	RotationNever  LogRotation = "never"
)

// NotificationBackend names one of the supported notification dispatch
// mechanisms.
type NotificationBackend string

const (
	NotifyWebhook NotificationBackend = "webhook"
	NotifyDesktop NotificationBackend = "desktop"
	NotifySound   NotificationBackend = "sound"
	NotifyNone    NotificationBackend = "none"
)

// Config is the root configuration for a ralph loop, loaded from
// ralph.toml. It is immutable once loaded and shared read-only across
// every branch FSM the scheduler spawns.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Git        GitConfig        `toml:"git"`
	Completion CompletionConfig `toml:"completion"`
	Validation ValidationConfig `toml:"validation"`
	Monitoring MonitoringConfig `toml:"monitoring"`
}

// AgentConfig selects and configures the active agent adapter. Provider
// selects the tagged-union variant; the per-variant sections hold
// options specific to that CLI.
type AgentConfig struct {
	Provider AgentProvider  `toml:"provider"`
	Cursor   CursorConfig   `toml:"cursor"`
	Claude   ClaudeConfig   `toml:"claude"`
}

// CursorConfig configures the cursor-agent CLI invocation.
type CursorConfig struct {
	Path            string `toml:"path"`
	Model           string `toml:"model"`
	OutputFormat    string `toml:"output_format"`
	TimeoutMinutes  int    `toml:"timeout_minutes"`
	PermissionBypass bool  `toml:"permission_bypass"`
	Verbose         bool   `toml:"verbose"`
}

// ClaudeConfig configures the claude CLI invocation.
type ClaudeConfig struct {
	Path            string `toml:"path"`
	Model           string `toml:"model"`
	OutputFormat    string `toml:"output_format"`
	TimeoutMinutes  int    `toml:"timeout_minutes"`
	PermissionBypass bool  `toml:"permission_bypass"`
	Verbose         bool   `toml:"verbose"`
}

// SandboxConfig configures the per-iteration container.
type SandboxConfig struct {
	Enabled         bool                  `toml:"enabled"`
	Image           string                `toml:"image"`
	ReuseContainer  bool                  `toml:"reuse_container"`
	UseLocalImage   bool                  `toml:"use_local_image"`
	Mounts          []string              `toml:"mounts"`
	CredentialMounts []string             `toml:"credential_mounts"`
	Network         NetworkConfig         `toml:"network"`
	Resources       ResourcesConfig       `toml:"resources"`
}

// NetworkConfig configures the sandbox's network policy.
type NetworkConfig struct {
	Policy  NetworkPolicy `toml:"policy"`
	Allowed []string      `toml:"allowed"`
	DNS     []string      `toml:"dns"`
}

// ResourcesConfig bounds container resource use.
type ResourcesConfig struct {
	Memory         string `toml:"memory"`
	CPUs           string `toml:"cpus"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
}

// GitConfig configures git identity and push behavior.
type GitConfig struct {
	AutoPush          bool            `toml:"auto_push"`
	AutoPR            bool            `toml:"auto_pr"`
	PRBase            string          `toml:"pr_base"`
	ProtectedBranches []string        `toml:"protected_branches"`
	Worktree          WorktreeConfig  `toml:"worktree"`
}

// WorktreeConfig configures the commit identity applied to each
// per-branch worktree.
type WorktreeConfig struct {
	Name       string `toml:"name"`
	Email      string `toml:"email"`
	SigningKey string `toml:"signing_key"`
	SSHKey     string `toml:"ssh_key"`
}

// CompletionConfig configures idle-completion detection.
type CompletionConfig struct {
	IdleThreshold uint64 `toml:"idle_threshold"`
}

// ValidationConfig configures the backpressure validator.
type ValidationConfig struct {
	Enabled bool   `toml:"enabled"`
	Command string `toml:"command"`
}

// MonitoringConfig configures logging, progress display, the circuit
// breaker, and notifications.
type MonitoringConfig struct {
	LogFile             string               `toml:"log_file"`
	LogFormat           LogFormat            `toml:"log_format"`
	LogRotation         LogRotation          `toml:"log_rotation"`
	ShowProgress        bool                 `toml:"show_progress"`
	MaxConsecutiveErrors uint64              `toml:"max_consecutive_errors"`
	Notifications       NotificationsConfig  `toml:"notifications"`
}

// NotificationsConfig selects the backend used for each notifiable
// event.
type NotificationsConfig struct {
	OnComplete NotificationBackend `toml:"on_complete"`
	OnError    NotificationBackend `toml:"on_error"`
	WebhookURL string              `toml:"webhook_url"`
}

// Default returns the default configuration. These defaults exist so
// every field has a sensible zero value before the file is parsed over
// them — they are not a substitute for the file, which Load still
// requires to exist.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider: ProviderClaude,
			Cursor: CursorConfig{
				Path:           "cursor-agent",
				OutputFormat:   "text",
				TimeoutMinutes: 30,
			},
			Claude: ClaudeConfig{
				Path:           "claude",
				OutputFormat:   "text",
				TimeoutMinutes: 30,
			},
		},
		Sandbox: SandboxConfig{
			Enabled:        true,
			Image:          "ralph-sandbox:latest",
			ReuseContainer: false,
			Network: NetworkConfig{
				Policy: NetworkAllowAll,
				DNS:    []string{"1.1.1.1", "8.8.8.8"},
			},
			Resources: ResourcesConfig{
				Memory:         "4g",
				CPUs:           "2",
				TimeoutMinutes: 30,
			},
		},
		Git: GitConfig{
			PRBase:            "main",
			ProtectedBranches: []string{"main", "master"},
			Worktree: WorktreeConfig{
				Name:  "ralph",
				Email: "ralph@localhost",
			},
		},
		Completion: CompletionConfig{
			IdleThreshold: 2,
		},
		Validation: ValidationConfig{
			Enabled: false,
		},
		Monitoring: MonitoringConfig{
			LogFile:              ".ralph/loop.log",
			LogFormat:            LogFormatText,
			LogRotation:          RotationDaily,
			ShowProgress:         true,
			MaxConsecutiveErrors: 5,
			Notifications: NotificationsConfig{
				OnComplete: NotifyNone,
				OnError:    NotifyNone,
			},
		},
	}
}

// Load resolves the config path (explicit path, or ./ralph.toml) and
// parses it. Unknown keys are rejected: the schema is strict.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = "ralph.toml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks invariants that must hold for any loaded
// configuration, independent of which fields the file set explicitly.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.Provider != ProviderCursor && c.Agent.Provider != ProviderClaude {
		errs = append(errs, fmt.Errorf("agent.provider must be %q or %q, got %q",
			ProviderCursor, ProviderClaude, c.Agent.Provider))
	}

	switch c.Sandbox.Network.Policy {
	case NetworkAllowAll, NetworkDeny, NetworkAllowlist:
	default:
		errs = append(errs, fmt.Errorf("sandbox.network.policy must be one of allow-all, deny, allowlist, got %q",
			c.Sandbox.Network.Policy))
	}

	if c.Completion.IdleThreshold < 1 {
		errs = append(errs, fmt.Errorf("completion.idle_threshold must be >= 1, got %d", c.Completion.IdleThreshold))
	}

	switch c.Monitoring.LogFormat {
	case LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("monitoring.log_format must be %q or %q, got %q",
			LogFormatJSON, LogFormatText, c.Monitoring.LogFormat))
	}

	switch c.Monitoring.LogRotation {
	case RotationDaily, RotationHourly, RotationNever:
	default:
		errs = append(errs, fmt.Errorf("monitoring.log_rotation must be daily, hourly, or never, got %q",
			c.Monitoring.LogRotation))
	}

	if c.Validation.Enabled && c.Validation.Command == "" {
		errs = append(errs, fmt.Errorf("validation.command is required when validation.enabled is true"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// IsProtectedBranch reports whether name appears in
// git.protected_branches. Auto-push must never target a protected
// branch.
func (c *Config) IsProtectedBranch(name string) bool {
	for _, b := range c.Git.ProtectedBranches {
		if b == name {
			return true
		}
	}
	return false
}

// BinaryPath resolves an agent or helper binary: an explicit path wins
// outright, otherwise it is looked up on PATH.
func BinaryPath(configuredPath, fallbackName string) (string, error) {
	if configuredPath != "" {
		if _, err := os.Stat(configuredPath); err == nil {
			return configuredPath, nil
		}
		if filepath.IsAbs(configuredPath) {
			return "", fmt.Errorf("%s not found", configuredPath)
		}
		if path, err := exec.LookPath(configuredPath); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%s not found on PATH", configuredPath)
	}

	path, err := exec.LookPath(fallbackName)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH", fallbackName)
	}
	return path, nil
}
