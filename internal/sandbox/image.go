// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralph-dev/ralph/lib/nix"
)

// BuildNixImage builds a container image from the given Nix flake
// attribute (e.g. ".#sandboxImage") with `nix build`, then loads the
// resulting tarball into the container engine with `docker/podman
// load`, returning the loaded image's tag. This is the alternative
// provisioning mode to pulling from a registry — operators who keep
// the sandbox image defined as a Nix derivation use this path instead
// of ResolveImage.
func BuildNixImage(ctx context.Context, rt *CLIRuntime, flakeAttr string) (string, error) {
	outPath, err := nix.RunContext(ctx, "build", "--no-link", "--print-out-paths", flakeAttr)
	if err != nil {
		return "", fmt.Errorf("nix build %s: %w", flakeAttr, err)
	}
	outPath = strings.TrimSpace(outPath)
	if outPath == "" {
		return "", fmt.Errorf("nix build %s produced no output path", flakeAttr)
	}

	loadOutput, err := rt.run(ctx, "load", "-i", outPath)
	if err != nil {
		return "", fmt.Errorf("loading nix-built image: %w", err)
	}
	tag := parseLoadedTag(loadOutput)
	if tag == "" {
		return "", fmt.Errorf("could not determine image tag from load output: %s", loadOutput)
	}
	return tag, nil
}

// ImageStatus reports whether image is present in the local engine
// store, for `ralph image status`.
func ImageStatus(ctx context.Context, rt *CLIRuntime, image string) (bool, error) {
	if _, err := rt.run(ctx, "image", "inspect", image); err != nil {
		return false, nil
	}
	return true, nil
}

// parseLoadedTag extracts the image reference from `docker load`'s
// "Loaded image: <tag>" (or podman's equivalent) output line.
func parseLoadedTag(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		const marker = "Loaded image:"
		if idx := strings.Index(line, marker); idx >= 0 {
			return strings.TrimSpace(line[idx+len(marker):])
		}
	}
	return ""
}
