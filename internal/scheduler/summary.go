// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Summary renders the aggregate {branch, terminal reason, iterations,
// commits, last error} table §4.3 step 5 calls for.
func Summary(results []BranchResult) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tREASON\tITERATIONS\tCOMMITS\tLAST COMMIT\tLAST ERROR")
	for _, r := range results {
		reason := string(r.Reason)
		if r.Err != nil {
			reason = "error: " + r.Err.Error()
		}
		lastErr := r.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		lastCommit := r.LastCommit
		if lastCommit == "" {
			lastCommit = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", r.Branch, reason, r.Iterations, r.Commits, lastCommit, lastErr)
	}
	w.Flush()
	return b.String()
}
