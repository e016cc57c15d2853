// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. This is
// the standard Bureau binary entrypoint error handler. Use it in main()
// for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	FatalCode(err, 1)
}

// FatalCode writes "error: err" to stderr and exits with the given
// code. Use it where the caller's error taxonomy maps to a specific
// exit code (e.g. agent-not-found, sandbox-create-failure, circuit
// tripped) rather than the generic code 1.
func FatalCode(err error, code int) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(code)
}
