// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"

	"github.com/ralph-dev/ralph/cmd/ralph/commands"
	"github.com/ralph-dev/ralph/internal/cli"
	"github.com/ralph-dev/ralph/lib/process"
)

func main() {
	err := commands.Root().Execute(os.Args[1:])
	if err == nil {
		return
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		process.FatalCode(err, coder.ExitCode())
	}
	process.Fatal(err)
}
