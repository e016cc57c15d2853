// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox provides the isolated, per-iteration execution
// environment: a container runtime controller (docker or podman, CLI
// subprocess wrapped the way internal/git and lib/nix wrap their own
// external tools), network-policy enforcement, and Nix-built image
// provisioning.
package sandbox

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zeebo/blake3"
)

// ContainerNamePrefix marks every container this system creates, so
// orphan cleanup can enumerate candidates without touching unrelated
// containers on the host.
const ContainerNamePrefix = "ralph-"

// CreateOptions describes a container to create.
type CreateOptions struct {
	Name         string
	Image        string
	WorkspaceDir string
	// CredentialMounts are read-only bind mounts, each "host:container".
	// Entries whose host path does not exist are silently skipped —
	// only paths present on the host are mounted.
	CredentialMounts []string
	ExtraMounts      []string
	MemoryLimit      string
	CPUs             string
	// NetAdmin grants NET_ADMIN, required only for the allowlist
	// network policy's firewall rule insertion.
	NetAdmin bool
	DNS      []string
}

// ContainerInfo is the subset of `inspect` state this system consumes.
type ContainerInfo struct {
	Name    string
	ID      string
	Running bool
}

// Runtime is the boundary over the container engine: resolve an
// image, create/start/exec/kill/remove a container, and list/inspect
// existing ones for orphan cleanup.
type Runtime interface {
	// ResolveImage ensures image is present locally, honoring
	// useLocal (query-then-pull-if-absent) vs. always-pull.
	ResolveImage(ctx context.Context, image string, useLocal bool) error
	Create(ctx context.Context, opts CreateOptions) error
	Start(ctx context.Context, name string) error
	// Exec runs command inside the named, already-started container
	// and returns combined stdout+stderr.
	Exec(ctx context.Context, name string, command []string) (string, error)
	Kill(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	// List returns the names of all containers carrying
	// ContainerNamePrefix, running or not.
	List(ctx context.Context) ([]string, error)
	Inspect(ctx context.Context, name string) (ContainerInfo, error)
}

// CLIRuntime implements Runtime by shelling out to a container engine
// CLI ("docker" or "podman") — both expose a compatible enough command
// surface for the operations this package needs.
type CLIRuntime struct {
	// Binary is "docker" or "podman".
	Binary string
}

// NewCLIRuntime returns a CLIRuntime for the named engine binary.
func NewCLIRuntime(binary string) *CLIRuntime {
	return &CLIRuntime{Binary: binary}
}

// DetectRuntime returns the first available engine binary, preferring
// docker, falling back to podman, matching the common installed-base
// order used by most dev tooling.
func DetectRuntime() (*CLIRuntime, error) {
	for _, candidate := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return NewCLIRuntime(candidate), nil
		}
	}
	return nil, fmt.Errorf("no container runtime found (looked for docker, podman)")
}

func (r *CLIRuntime) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			r.Binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ResolveImage implements Runtime.
func (r *CLIRuntime) ResolveImage(ctx context.Context, image string, useLocal bool) error {
	if useLocal {
		if _, err := r.run(ctx, "image", "inspect", image); err == nil {
			return nil
		}
	}
	_, err := r.run(ctx, "pull", image)
	return err
}

// Create implements Runtime.
func (r *CLIRuntime) Create(ctx context.Context, opts CreateOptions) error {
	args := []string{"create", "--name", opts.Name}

	args = append(args, "-v", opts.WorkspaceDir+":/workspace:rw", "-w", "/workspace")
	for _, mount := range opts.CredentialMounts {
		if !hostPathExists(mount) {
			continue
		}
		args = append(args, "-v", mount+":ro")
	}
	for _, mount := range opts.ExtraMounts {
		args = append(args, "-v", mount)
	}
	if opts.MemoryLimit != "" {
		args = append(args, "--memory", opts.MemoryLimit)
	}
	if opts.CPUs != "" {
		args = append(args, "--cpus", opts.CPUs)
	}
	if opts.NetAdmin {
		args = append(args, "--cap-add", "NET_ADMIN")
	}
	for _, dns := range opts.DNS {
		args = append(args, "--dns", dns)
	}

	// A safe default command that keeps the container alive for exec:
	// no application logic runs here, so there's nothing to fail on.
	args = append(args, opts.Image, "sleep", "infinity")

	_, err := r.run(ctx, args...)
	return err
}

// hostPathExists reports whether the host side of a "host:container"
// (or "host:container:mode") mount spec exists, without importing
// os/exec again for something os.Stat already answers.
func hostPathExists(spec string) bool {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 0 {
		return false
	}
	return pathExists(parts[0])
}

// Start implements Runtime.
func (r *CLIRuntime) Start(ctx context.Context, name string) error {
	_, err := r.run(ctx, "start", name)
	return err
}

// Exec implements Runtime.
func (r *CLIRuntime) Exec(ctx context.Context, name string, command []string) (string, error) {
	args := append([]string{"exec", name}, command...)
	return r.run(ctx, args...)
}

// Kill implements Runtime.
func (r *CLIRuntime) Kill(ctx context.Context, name string) error {
	_, err := r.run(ctx, "kill", name)
	return err
}

// Remove implements Runtime.
func (r *CLIRuntime) Remove(ctx context.Context, name string) error {
	_, err := r.run(ctx, "rm", "-f", name)
	return err
}

// List implements Runtime.
func (r *CLIRuntime) List(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "ps", "-a", "--filter", "name="+ContainerNamePrefix, "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Inspect implements Runtime.
func (r *CLIRuntime) Inspect(ctx context.Context, name string) (ContainerInfo, error) {
	out, err := r.run(ctx, "inspect", "--format", "{{.Id}}|{{.State.Running}}", name)
	if err != nil {
		return ContainerInfo{}, err
	}
	fields := strings.SplitN(strings.TrimSpace(out), "|", 2)
	info := ContainerInfo{Name: name}
	if len(fields) > 0 {
		info.ID = fields[0]
	}
	if len(fields) > 1 {
		info.Running = fields[1] == "true"
	}
	return info, nil
}

// containerNameDomainKey separates the container-naming BLAKE3 domain
// from other hash uses in this codebase, so a branch name never
// collides with an unrelated hash computed under a different domain.
var containerNameDomainKey = [32]byte{
	'r', 'a', 'l', 'p', 'h', '.', 's', 'a', 'n', 'd', 'b', 'o', 'x', '.',
	'c', 'o', 'n', 't', 'a', 'i', 'n', 'e', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ContainerName deterministically derives a container name from a
// branch name: a sanitized, human-readable prefix for recognizability
// in `docker ps`, plus a short BLAKE3 digest of the full branch name so
// two branches that sanitize to the same text (e.g. "feat/a_b" and
// "feat/a-b") never collide on one container identity.
func ContainerName(branch string) string {
	sanitized := strings.NewReplacer("/", "-", "_", "-").Replace(branch)

	hasher, err := blake3.NewKeyed(containerNameDomainKey[:])
	if err != nil {
		panic("sandbox: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(branch))
	digest := hasher.Sum(nil)

	return ContainerNamePrefix + sanitized + "-" + hex.EncodeToString(digest[:4])
}
