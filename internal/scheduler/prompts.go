// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralph-dev/ralph/internal/state"
)

// filePromptSource loads PROMPT_<mode>.md from a worktree, or an
// operator-supplied override file regardless of mode.
type filePromptSource struct {
	dir      string
	override string
}

func (f *filePromptSource) Load(mode state.Mode) (string, error) {
	path := f.override
	if path == "" {
		path = filepath.Join(f.dir, fmt.Sprintf("PROMPT_%s.md", mode))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt template %s: %w", path, err)
	}
	return string(data), nil
}
