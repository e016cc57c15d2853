// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/ralph-dev/ralph/internal/config"
	"github.com/ralph-dev/ralph/internal/git"
)

// repoContext bundles the loaded configuration and the primary
// repository every verb but init needs, resolved from the current
// working directory.
type repoContext struct {
	cfg     *config.Config
	repo    *git.Repository
	rootDir string
}

func currentDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return dir, nil
}

func loadRepoContext(configPath string) (*repoContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, exitErrorf(1, "%v", err)
	}

	rootDir, err := currentDir()
	if err != nil {
		return nil, err
	}

	return &repoContext{
		cfg:     cfg,
		repo:    git.NewRepository(rootDir),
		rootDir: rootDir,
	}, nil
}
