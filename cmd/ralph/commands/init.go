// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/internal/config"
)

type initParams struct {
	Force bool `flag:"force" desc:"overwrite existing files"`
}

const defaultPlanTemplate = `## Branch: feat/example

Describe the branch's goal here.

- [ ] describe the first task
- [ ] describe the second task
`

const defaultPlanPrompt = `You are working in plan mode. Read IMPLEMENTATION_PLAN.md and refine
the task breakdown for this branch until every step is small enough to
implement and verify independently. Do not write implementation code
yet. When the plan is ready, reply with a line starting with
"RALPH_COMPLETE:" followed by a short summary.
`

const defaultBuildPrompt = `You are working in build mode. Pick the next unchecked task in
IMPLEMENTATION_PLAN.md, implement it, run the project's tests, and
commit. Check the task off when it passes. When every task is checked,
reply with a line starting with "RALPH_COMPLETE:" followed by a short
summary.
`

func initCommand() *cli.Command {
	params := &initParams{}

	return &cli.Command{
		Name:    "init",
		Summary: "Emit config and template files into the current directory",
		Description: `Writes ralph.toml, IMPLEMENTATION_PLAN.md, PROMPT_plan.md, and
PROMPT_build.md into the current directory. Existing files are left
untouched unless --force is given.`,
		Usage: "ralph init [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("init takes no positional arguments, got %q", args[0])
			}
			return runInit(params.Force)
		},
	}
}

func runInit(force bool) error {
	cfg := config.Default()
	cfgBytes, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{"ralph.toml", cfgBytes},
		{"IMPLEMENTATION_PLAN.md", []byte(defaultPlanTemplate)},
		{"PROMPT_plan.md", []byte(defaultPlanPrompt)},
		{"PROMPT_build.md", []byte(defaultBuildPrompt)},
	}

	for _, f := range files {
		if err := writeTemplate(f.name, f.content, force); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(".ralph", 0755); err != nil {
		return fmt.Errorf("creating .ralph: %w", err)
	}

	return appendGitignore()
}

func writeTemplate(name string, content []byte, force bool) error {
	if !force {
		if _, err := os.Stat(name); err == nil {
			fmt.Printf("skipping %s (already exists, use --force to overwrite)\n", name)
			return nil
		}
	}
	if err := os.WriteFile(name, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	fmt.Printf("wrote %s\n", name)
	return nil
}

// appendGitignore ensures the two directories ralph owns at runtime
// (per-branch worktrees and persisted loop state) are excluded from
// version control, adding entries only if they are not already present.
func appendGitignore() error {
	existing, err := os.ReadFile(".gitignore")
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading .gitignore: %w", err)
	}

	lines := strings.Split(string(existing), "\n")
	content := existing
	for _, entry := range []string{".worktrees/", ".ralph/"} {
		if slices.Contains(lines, entry) {
			continue
		}
		content = append(content, []byte(entry+"\n")...)
	}

	return os.WriteFile(".gitignore", content, 0644)
}
