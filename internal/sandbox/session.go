// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/ralph-dev/ralph/internal/lock"
)

// Options configures a Session for one branch's lifetime.
type Options struct {
	Branch          string
	Image           string
	UseLocalImage   bool
	ReuseContainer  bool
	WorkspaceDir    string
	CredentialMounts []string
	ExtraMounts     []string
	MemoryLimit     string
	CPUs            string
	TimeoutMinutes  int
	NetworkPolicy   NetworkPolicy
	AllowedHosts    []string
	DNS             []string
}

// Session manages one branch's sandboxed execution environment across
// iterations: resolve the image, create and start the container once,
// apply the network policy, run exec calls against it per iteration,
// and dispose of it (or not, if configured to reuse) when the branch's
// FSM finishes.
type Session struct {
	opts      Options
	runtime   Runtime
	container string
	started   bool
}

// NewSession returns a Session bound to runtime, not yet started.
func NewSession(runtime Runtime, opts Options) *Session {
	return &Session{
		opts:      opts,
		runtime:   runtime,
		container: ContainerName(opts.Branch),
	}
}

// ContainerName returns the deterministic container name for this
// session's branch.
func (s *Session) ContainerName() string { return s.container }

// Start resolves the image, creates the container, starts it, and
// applies the configured network policy — steps 1, 3, and 4 of the
// session lifecycle. Network policy application failure is returned
// directly; the caller must treat it as fatal for the whole session,
// never retried in place, since a restrictive policy that failed to
// apply means the container is running without the isolation the
// operator configured.
func (s *Session) Start(ctx context.Context) error {
	if err := s.runtime.ResolveImage(ctx, s.opts.Image, s.opts.UseLocalImage); err != nil {
		return fmt.Errorf("resolving image %s: %w", s.opts.Image, err)
	}

	if _, err := s.runtime.Inspect(ctx, s.container); err == nil && s.opts.ReuseContainer {
		// A reused container may be left stopped by a prior session's
		// Dispose; starting an already-running one is a harmless no-op.
		if err := s.runtime.Start(ctx, s.container); err != nil {
			return fmt.Errorf("starting reused container %s: %w", s.container, err)
		}
		s.started = true
		if err := ApplyNetworkPolicy(ctx, s.runtime, s.container, s.opts.NetworkPolicy, s.opts.AllowedHosts, net.DefaultResolver); err != nil {
			return fmt.Errorf("applying network policy %s: %w", s.opts.NetworkPolicy, err)
		}
		return nil
	}

	createOpts := CreateOptions{
		Name:             s.container,
		Image:            s.opts.Image,
		WorkspaceDir:     s.opts.WorkspaceDir,
		CredentialMounts: s.opts.CredentialMounts,
		ExtraMounts:      s.opts.ExtraMounts,
		MemoryLimit:      s.opts.MemoryLimit,
		CPUs:             s.opts.CPUs,
		NetAdmin:         s.opts.NetworkPolicy.requiresNetAdmin(),
		DNS:              s.opts.DNS,
	}
	if err := s.runtime.Create(ctx, createOpts); err != nil {
		return fmt.Errorf("creating container %s: %w", s.container, err)
	}
	if err := s.runtime.Start(ctx, s.container); err != nil {
		return fmt.Errorf("starting container %s: %w", s.container, err)
	}
	s.started = true

	if err := ApplyNetworkPolicy(ctx, s.runtime, s.container, s.opts.NetworkPolicy, s.opts.AllowedHosts, net.DefaultResolver); err != nil {
		return fmt.Errorf("applying network policy %s: %w", s.opts.NetworkPolicy, err)
	}
	return nil
}

// Exec runs command inside the session's container, enforcing the
// configured per-iteration timeout by killing the container if it is
// exceeded.
func (s *Session) Exec(ctx context.Context, command []string) (string, error) {
	if !s.started {
		return "", fmt.Errorf("session for %s not started", s.opts.Branch)
	}
	if s.opts.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.opts.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	output, err := s.runtime.Exec(ctx, s.container, command)
	if err != nil && ctx.Err() != nil {
		_ = s.runtime.Kill(context.Background(), s.container)
	}
	return output, err
}

// Dispose ends the container's involvement in this run. A container
// configured for reuse is stopped, not removed, so the next session
// for the same branch can recognize it via Inspect and skip Create —
// but it must not be left running once the FSM that owns it exits.
// Any other container is removed outright.
func (s *Session) Dispose(ctx context.Context) error {
	if !s.started {
		return nil
	}
	if s.opts.ReuseContainer {
		return s.runtime.Kill(ctx, s.container)
	}
	return s.runtime.Remove(ctx, s.container)
}

// CleanOrphans removes containers carrying ContainerNamePrefix whose
// owning process is no longer alive, detected by checking the
// per-branch lock file the FSM holds while active — a live branch
// holds lockDir/<container name>.lock, so a container whose lock is not
// held has no live owner and is safe to remove.
func CleanOrphans(ctx context.Context, rt Runtime, lockDir string) ([]string, error) {
	names, err := rt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	var removed []string
	for _, name := range names {
		lockPath := filepath.Join(lockDir, name+".lock")
		if lock.IsHeld(lockPath) {
			continue
		}
		if err := rt.Remove(ctx, name); err != nil {
			return removed, fmt.Errorf("removing orphan container %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
