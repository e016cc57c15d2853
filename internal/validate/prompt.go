// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import "strings"

// delimiterHeader is the stable marker identifying an appended block
// as a validation failure from the previous iteration. It is matched
// literally nowhere else, so HasPendingFailure can detect whether a
// prompt already carries a pending validation error without re-parsing
// markdown.
const delimiterHeader = "## Validation failed (previous iteration)"

const fixInstruction = "Fix the issues above before proceeding with the plan."

// AppendFailure builds the next iteration's prompt by folding the
// validator's full output into the given base prompt, using the fixed
// delimiter-header / fenced-block / fix-instruction shape.
func AppendFailure(basePrompt string, result Result) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(delimiterHeader)
	b.WriteString("\n\n```\n")
	b.WriteString(result.Output)
	if !strings.HasSuffix(result.Output, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(fixInstruction)
	b.WriteString("\n")
	return b.String()
}

// HasPendingFailure reports whether prompt already carries a folded
// validation-failure block. The FSM does not call it; it avoids a
// second append by clearing pending_validation_error once folded.
func HasPendingFailure(prompt string) bool {
	return strings.Contains(prompt, delimiterHeader)
}
