// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentdriver adapts the agent program — an external CLI
// invoked once per iteration — behind a uniform Driver interface.
// There is a closed set of variants (Cursor, Claude); each launches a
// different binary with different flags and a different prompt
// channel, but all satisfy the same contract: invoke, capture stdout
// in full, classify failure.
package agentdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrorKind classifies a failed invocation the way the iteration FSM's
// error taxonomy requires.
type ErrorKind int

const (
	// KindNone indicates success.
	KindNone ErrorKind = iota
	// KindAgentNotFound means the configured binary could not be
	// resolved. Fatal.
	KindAgentNotFound
	// KindAgentTimeout means the process did not finish within the
	// configured per-iteration timeout.
	KindAgentTimeout
	// KindRateLimited means the output matched a known rate-limit
	// phrase for this variant.
	KindRateLimited
	// KindTransportError means the process failed in a way that looks
	// like a network/transport problem rather than a genuine agent
	// failure.
	KindTransportError
	// KindAgentFailure is the generic non-zero-exit case that matches
	// none of the more specific patterns.
	KindAgentFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindAgentNotFound:
		return "AgentNotFound"
	case KindAgentTimeout:
		return "AgentTimeout"
	case KindRateLimited:
		return "RateLimited"
	case KindTransportError:
		return "TransportError"
	case KindAgentFailure:
		return "AgentFailure"
	default:
		return "None"
	}
}

// Error wraps a classified agent-invocation failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// AsKind extracts the ErrorKind from err, returning KindAgentFailure
// for any error not produced by this package.
func AsKind(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindAgentFailure
}

// Invocation describes one call to the agent: the prompt to deliver
// and the working directory (the sandboxed or host path, depending on
// whether the sandbox is enabled) it should run in.
type Invocation struct {
	Prompt  string
	WorkDir string
	Timeout time.Duration
}

// Result is the captured outcome of a successful invocation.
type Result struct {
	Output string
}

// Driver is the uniform boundary over the agent-program capability
// set: name, invoke(prompt, cwd) -> output.
type Driver interface {
	// Name identifies the variant, used in log records and the
	// RALPH_PROVIDER / --provider selection.
	Name() string

	// Invoke runs one iteration's agent call. ctx carries cancellation
	// for operator interrupts; the driver is also responsible for
	// enforcing inv.Timeout itself so a hung child process cannot
	// block past the adapter-level timeout named in the concurrency
	// model.
	Invoke(ctx context.Context, inv Invocation) (Result, error)

	// Argv returns the full command line — binary first, followed by
	// its arguments — for inv. Used by callers that run the agent
	// through a separate execution boundary (a sandbox session) rather
	// than owning the *exec.Cmd themselves, so the prompt is always
	// delivered as a positional argument there even for variants whose
	// Invoke prefers stdin.
	Argv(inv Invocation) []string
}

// rateLimitPhrases are substrings, checked case-insensitively, that
// the transcript may show when a provider rejects a call as rate
// limited. Shared across variants since both wrap similarly-phrased
// HTTP backends; variant-specific phrases can be appended per driver
// if real usage shows a gap.
var rateLimitPhrases = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
}

var transportPhrases = []string{
	"connection refused",
	"connection reset",
	"network is unreachable",
	"timeout while establishing connection",
	"tls handshake",
	"no route to host",
}

// classifyOutput inspects captured output for known failure phrases,
// returning KindNone when nothing matches and the caller should fall
// back to KindAgentFailure.
func classifyOutput(output string) ErrorKind {
	lower := strings.ToLower(output)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return KindRateLimited
		}
	}
	for _, phrase := range transportPhrases {
		if strings.Contains(lower, phrase) {
			return KindTransportError
		}
	}
	return KindNone
}

// runCommand executes cmd, enforcing timeout via the context deadline
// the caller already attached, and classifies any failure. stdout is
// returned as Result.Output regardless of exit status, since a
// rate-limit or transport failure may still print a useful message the
// caller wants to classify and log.
func runCommand(ctx context.Context, cmd *exec.Cmd, binaryName string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()

	if err == nil {
		return Result{Output: output}, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Output: output}, &Error{Kind: KindAgentTimeout, Err: err}
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return Result{Output: output}, &Error{Kind: KindAgentNotFound,
			Err: fmt.Errorf("%s: %w", binaryName, err)}
	}

	combined := output + "\n" + stderr.String()
	if kind := classifyOutput(combined); kind != KindNone {
		return Result{Output: output}, &Error{Kind: kind, Err: err}
	}

	return Result{Output: output}, &Error{Kind: KindAgentFailure,
		Err: fmt.Errorf("%s: %w (stderr: %s)", binaryName, err, strings.TrimSpace(stderr.String()))}
}

// ClassifyResult turns the (output, err) pair a sandbox.Session.Exec
// call returns into the same Result/error shape runCommand produces,
// so an agent invoked inside a container is classified by the same
// taxonomy as one invoked directly. Session.Exec surfaces a failing
// exec as a plain error string rather than a typed *exec.Error or
// *exec.ExitError, so not-found detection here is phrase-based instead
// of type-based.
func ClassifyResult(ctx context.Context, output string, err error, binaryName string) (Result, error) {
	if err == nil {
		return Result{Output: output}, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Output: output}, &Error{Kind: KindAgentTimeout, Err: err}
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "executable file not found") || strings.Contains(lower, "no such file or directory") {
		return Result{Output: output}, &Error{Kind: KindAgentNotFound,
			Err: fmt.Errorf("%s: %w", binaryName, err)}
	}

	combined := output + "\n" + err.Error()
	if kind := classifyOutput(combined); kind != KindNone {
		return Result{Output: output}, &Error{Kind: kind, Err: err}
	}

	return Result{Output: output}, &Error{Kind: KindAgentFailure,
		Err: fmt.Errorf("%s: %w", binaryName, err)}
}

// Select resolves which Driver variant to construct: a non-empty
// explicit value (from --provider) wins outright, else env wins, else
// the config file's value — the documented strict priority order.
func Select(explicit, env, configured string) string {
	if explicit != "" {
		return explicit
	}
	if env != "" {
		return env
	}
	return configured
}
