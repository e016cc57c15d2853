// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "os/exec"

// Capabilities describes which container engine, if any, is available
// on this host.
type Capabilities struct {
	Engine     string // "docker", "podman", or "" if neither found
	EnginePath string
}

// DetectCapabilities probes for a usable container engine.
func DetectCapabilities() Capabilities {
	for _, candidate := range []string{"docker", "podman"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return Capabilities{Engine: candidate, EnginePath: path}
		}
	}
	return Capabilities{}
}

// CanRunSandbox reports whether a container engine was found.
func (c Capabilities) CanRunSandbox() bool {
	return c.Engine != ""
}

// SkipReason returns a human-readable reason sandboxing is
// unavailable, or "" if it is available.
func (c Capabilities) SkipReason() string {
	if c.Engine == "" {
		return "no container runtime found (looked for docker, podman)"
	}
	return ""
}
