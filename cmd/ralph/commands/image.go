// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/sandbox"
)

func imageCommand() *cli.Command {
	return &cli.Command{
		Name:    "image",
		Summary: "Manage the sandbox container image",
		Usage:   "ralph image <build|pull|status> [flags]",
		Subcommands: []*cli.Command{
			imageBuildCommand(),
			imagePullCommand(),
			imageStatusCommand(),
		},
	}
}

type imageBuildParams struct {
	Config    string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
	FlakeAttr string `flag:"flake-attr" desc:"Nix flake attribute to build" default:".#sandboxImage"`
}

func imageBuildCommand() *cli.Command {
	params := &imageBuildParams{}

	return &cli.Command{
		Name:    "build",
		Summary: "Build the sandbox image from a Nix flake and load it locally",
		Usage:   "ralph image build [--flake-attr ATTR]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("image build", params)
		},
		Run: func(args []string) error {
			if _, err := loadRepoContext(params.Config); err != nil {
				return err
			}
			rt, err := sandbox.DetectRuntime()
			if err != nil {
				return exitErrorf(3, "%v", err)
			}
			tag, err := sandbox.BuildNixImage(context.Background(), rt, params.FlakeAttr)
			if err != nil {
				return exitErrorf(3, "building sandbox image: %v", err)
			}
			fmt.Printf("built and loaded %s\n", tag)
			return nil
		},
	}
}

type imagePullParams struct {
	Config string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
}

func imagePullCommand() *cli.Command {
	params := &imagePullParams{}

	return &cli.Command{
		Name:    "pull",
		Summary: "Pull the configured sandbox image from its registry",
		Usage:   "ralph image pull [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("image pull", params)
		},
		Run: func(args []string) error {
			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}
			rt, err := sandbox.DetectRuntime()
			if err != nil {
				return exitErrorf(3, "%v", err)
			}
			if err := rt.ResolveImage(context.Background(), rc.cfg.Sandbox.Image, rc.cfg.Sandbox.UseLocalImage); err != nil {
				return exitErrorf(3, "pulling sandbox image %s: %v", rc.cfg.Sandbox.Image, err)
			}
			fmt.Printf("pulled %s\n", rc.cfg.Sandbox.Image)
			return nil
		},
	}
}

type imageStatusParams struct {
	Config string `flag:"config" desc:"path to ralph.toml (default ./ralph.toml)"`
}

func imageStatusCommand() *cli.Command {
	params := &imageStatusParams{}

	return &cli.Command{
		Name:    "status",
		Summary: "Report whether the configured sandbox image is present locally",
		Usage:   "ralph image status [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("image status", params)
		},
		Run: func(args []string) error {
			rc, err := loadRepoContext(params.Config)
			if err != nil {
				return err
			}
			rt, err := sandbox.DetectRuntime()
			if err != nil {
				return exitErrorf(3, "%v", err)
			}
			present, err := sandbox.ImageStatus(context.Background(), rt, rc.cfg.Sandbox.Image)
			if err != nil {
				return fmt.Errorf("checking image status: %w", err)
			}
			if present {
				fmt.Printf("%s: present\n", rc.cfg.Sandbox.Image)
			} else {
				fmt.Printf("%s: not present\n", rc.cfg.Sandbox.Image)
			}
			return nil
		},
	}
}
