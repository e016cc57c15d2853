// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import "strings"

// Render serializes a Plan back to the markdown shape Parse
// recognises, so Parse(Render(p)) round-trips branches and tasks.
func Render(p *Plan) []byte {
	var b strings.Builder
	for i, branch := range p.Branches {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Branch: " + branch.Name + "\n\n")
		if branch.Goal != "" {
			b.WriteString(branch.Goal + "\n\n")
		}
		for _, task := range branch.Tasks {
			box := "[ ]"
			if task.Done {
				box = "[x]"
			}
			b.WriteString("- " + box + " " + task.Description + "\n")
		}
	}
	return []byte(b.String())
}

// UnfinishedBranches returns the branches that carry at least one
// incomplete task, the selection criterion the scheduler applies when
// materialising worktrees.
func UnfinishedBranches(p *Plan) []Branch {
	var out []Branch
	for _, branch := range p.Branches {
		for _, task := range branch.Tasks {
			if !task.Done {
				out = append(out, branch)
				break
			}
		}
	}
	return out
}
