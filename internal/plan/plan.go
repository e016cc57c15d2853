// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan parses and renders IMPLEMENTATION_PLAN.md: an ordered
// sequence of branches, each carrying a goal and a task checklist.
// Parsing is intentionally forgiving, following the same AST-walk
// idiom the terminal markdown renderer in lib/ticketui uses (goldmark
// with the GFM extension for task-list checkboxes), but producing a
// structured Plan instead of styled terminal text.
package plan

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Task is one checklist item under a branch heading.
type Task struct {
	Description string
	Done        bool
}

// Branch is one `## Branch: <name>` section of the plan.
type Branch struct {
	Name  string
	Goal  string
	Base  string
	Tasks []Task
}

// Plan is the ordered sequence of branches extracted from a plan
// document.
type Plan struct {
	Branches []Branch
}

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

const branchHeadingPrefix = "Branch:"

// Parse extracts a Plan from a markdown document. Recognises `##
// Branch: <name>` headings; everything textual immediately under a
// heading and before the first list becomes that branch's goal; GFM
// task-list items become Tasks. A heading with no task-list items
// under it is skipped — the design follows the source system's own
// forgiving parse rules: a heading without tasks is dropped, a list
// item without a checkbox becomes a plain description with Done=false,
// and duplicate branch names coalesce to the first occurrence.
func Parse(source []byte) (*Plan, error) {
	reader := text.NewReader(source)
	document := markdownParser.Parser().Parse(reader)

	p := &Plan{}
	seen := make(map[string]int) // branch name -> index in p.Branches

	var current *Branch
	var pendingGoalLines []string

	flushGoal := func() {
		if current != nil && len(pendingGoalLines) > 0 {
			goal := strings.TrimSpace(strings.Join(pendingGoalLines, " "))
			if current.Goal == "" {
				current.Goal = goal
			}
		}
		pendingGoalLines = nil
	}

	err := ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node.Kind() {
		case ast.KindHeading:
			heading := node.(*ast.Heading)
			if heading.Level != 2 {
				return ast.WalkContinue, nil
			}
			text := inlineText(node, source)
			name, ok := parseBranchHeading(text)
			if !ok {
				return ast.WalkContinue, nil
			}
			flushGoal()
			if idx, dup := seen[name]; dup {
				current = &p.Branches[idx]
			} else {
				p.Branches = append(p.Branches, Branch{Name: name})
				seen[name] = len(p.Branches) - 1
				current = &p.Branches[len(p.Branches)-1]
			}
			return ast.WalkSkipChildren, nil

		case ast.KindParagraph:
			if current != nil {
				line := inlineText(node, source)
				if line != "" {
					pendingGoalLines = append(pendingGoalLines, line)
				}
			}
			return ast.WalkSkipChildren, nil

		case ast.KindListItem:
			if current == nil {
				return ast.WalkContinue, nil
			}
			flushGoal()
			task, ok := parseTaskItem(node, source)
			if ok {
				current.Tasks = append(current.Tasks, task)
			}
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	flushGoal()

	kept := p.Branches[:0]
	for _, b := range p.Branches {
		if len(b.Tasks) > 0 {
			kept = append(kept, b)
		}
	}
	p.Branches = kept

	return p, nil
}

// parseBranchHeading extracts the branch name from heading text of the
// form "Branch: <name>". Returns ok=false for any other heading.
func parseBranchHeading(headingText string) (name string, ok bool) {
	trimmed := strings.TrimSpace(headingText)
	if !strings.HasPrefix(trimmed, branchHeadingPrefix) {
		return "", false
	}
	name = strings.TrimSpace(strings.TrimPrefix(trimmed, branchHeadingPrefix))
	if name == "" {
		return "", false
	}
	return name, true
}

// parseTaskItem extracts a Task from a list item. A checkbox makes
// Done reflect its state; a plain list item (no checkbox) becomes an
// un-done description, per the forgiving-parse design note.
func parseTaskItem(item ast.Node, source []byte) (Task, bool) {
	var description strings.Builder
	done := false
	found := false

	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case ast.KindTextBlock, ast.KindParagraph:
			for grandchild := child.FirstChild(); grandchild != nil; grandchild = grandchild.NextSibling() {
				if grandchild.Kind() == extast.KindTaskCheckBox {
					checkbox := grandchild.(*extast.TaskCheckBox)
					done = checkbox.IsChecked
					found = true
				}
			}
			description.WriteString(inlineText(child, source))
		}
	}

	text := strings.TrimSpace(description.String())
	if text == "" {
		return Task{}, false
	}
	_ = found
	return Task{Description: text, Done: done}, true
}

// inlineText collects the plain-text content of a node's inline
// descendants, joining adjacent text segments with no extra spacing
// beyond what the source already contains (soft breaks become spaces).
func inlineText(node ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch n.Kind() {
		case ast.KindText:
			t := n.(*ast.Text)
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteString(" ")
			}
		case ast.KindString:
			b.Write(n.(*ast.String).Value)
		case extast.KindTaskCheckBox:
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}
