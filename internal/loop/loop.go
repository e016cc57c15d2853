// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ralph-dev/ralph/internal/agentdriver"
	"github.com/ralph-dev/ralph/internal/config"
	"github.com/ralph-dev/ralph/internal/git"
	"github.com/ralph-dev/ralph/internal/notify"
	"github.com/ralph-dev/ralph/internal/obslog"
	"github.com/ralph-dev/ralph/internal/progress"
	"github.com/ralph-dev/ralph/internal/state"
	"github.com/ralph-dev/ralph/internal/validate"
	"github.com/ralph-dev/ralph/lib/clock"
)

// TerminalReason names why the FSM stopped, in the strict priority
// order the terminal check evaluates.
type TerminalReason string

const (
	ReasonNone           TerminalReason = ""
	ReasonCancelled      TerminalReason = "cancelled"
	ReasonMaxReached     TerminalReason = "max_reached"
	ReasonIdleComplete   TerminalReason = "idle_complete"
	ReasonCircuitTripped TerminalReason = "circuit_tripped"
	ReasonPromiseMatched TerminalReason = "promise_matched"
)

// Event names the structured-log record kinds the FSM emits.
const (
	eventIterationStart    = "iteration_start"
	eventAgentStart        = "agent_start"
	eventAgentEnd          = "agent_end"
	eventValidationStart   = "validation_start"
	eventValidationEnd     = "validation_end"
	eventCommit            = "commit"
	eventPush              = "push"
	eventError             = "error"
	eventIterationComplete = "iteration_complete"
	eventTerminal          = "terminal"
)

// PromptSource loads the prompt template for a given mode, abstracting
// file I/O so tests can supply fixed prompt text.
type PromptSource interface {
	Load(mode state.Mode) (string, error)
}

// Session is the subset of sandbox.Session the FSM needs to run the
// agent inside a container. When sandboxing is disabled, Deps.Sandbox
// is nil and the agent runs on the host through Driver.Invoke.
type Session interface {
	Exec(ctx context.Context, command []string) (string, error)
}

// Deps bundles every injectable collaborator the FSM needs. All I/O
// and clock access go through these interfaces so the FSM itself is
// deterministic under test, the same "every side effect is injectable"
// shape the concurrency model requires.
type Deps struct {
	Clock       clock.Clock
	Git         *git.Repository
	GitLockPath string
	Driver      agentdriver.Driver
	Sandbox     Session // nil when sandbox.enabled is false; agent runs on the host instead
	Validator   *validate.Runner // nil when validation is disabled
	Logger      *obslog.Logger
	Notifier    *notify.Dispatcher
	Progress    *progress.Panel
	Prompts     PromptSource
	Worktree    string
	StatePath   string
	// RunID correlates every record this FSM run logs, across
	// iterations and (for a resumed branch) across process restarts.
	RunID string
}

// FSM drives one branch's iteration loop.
type FSM struct {
	branch string
	cfg    *config.Config
	state  *state.LoopState
	deps   Deps

	lastOutput string
	startedAt  time.Time
}

// New returns an FSM for the given branch, configuration, and
// persisted state (as returned by state.Load or state.New).
func New(branch string, cfg *config.Config, st *state.LoopState, deps Deps) *FSM {
	return &FSM{branch: branch, cfg: cfg, state: st, deps: deps}
}

// State returns the FSM's current persisted state, for callers (the
// scheduler, `ralph status`) that need to inspect it between runs.
func (f *FSM) State() *state.LoopState { return f.state }

// Run drives the FSM to a terminal state, persisting state after every
// iteration. ctx cancellation is treated as an operator interrupt: the
// next terminal check reports ReasonCancelled.
func (f *FSM) Run(ctx context.Context) (TerminalReason, error) {
	f.startedAt = f.deps.Clock.Now()
	f.state.Active = true

	for {
		if reason := f.checkTerminal(ctx); reason != ReasonNone {
			f.state.Active = false
			f.logEvent(eventTerminal, map[string]any{"reason": string(reason)})
			if err := f.persist(); err != nil {
				return reason, err
			}
			return reason, nil
		}

		prompt, err := f.prepIter()
		if err != nil {
			return ReasonNone, fmt.Errorf("prep_iter: %w", err)
		}

		output, kind, runErr := f.runAgent(ctx, prompt)
		f.lastOutput = output

		if kind == agentdriver.KindAgentNotFound {
			f.state.Active = false
			f.logEvent(eventError, map[string]any{"kind": kind.String(), "message": runErr.Error()})
			_ = f.persist()
			return ReasonNone, fmt.Errorf("agent not found: %w", runErr)
		}

		if kind == agentdriver.KindAgentTimeout {
			f.state.ConsecutiveErrors++
			f.state.ErrorCount++
			f.state.LastError = runErr.Error()
			f.logEvent(eventError, map[string]any{"kind": kind.String()})
			if err := f.persist(); err != nil {
				return ReasonNone, err
			}
			continue
		}

		if kind == agentdriver.KindRateLimited || kind == agentdriver.KindTransportError {
			f.state.ConsecutiveErrors++
			f.state.ErrorCount++
			f.state.LastError = runErr.Error()
			f.logEvent(eventError, map[string]any{"kind": kind.String()})
			if err := f.persist(); err != nil {
				return ReasonNone, err
			}
			if err := f.backoff(ctx); err != nil {
				return ReasonNone, err
			}
			continue
		}

		if kind == agentdriver.KindAgentFailure {
			f.state.ConsecutiveErrors++
			f.state.ErrorCount++
			f.state.LastError = runErr.Error()
			f.logEvent(eventError, map[string]any{"kind": kind.String()})
			if err := f.persist(); err != nil {
				return ReasonNone, err
			}
			continue
		}

		// The agent iteration itself succeeded; whatever consecutive
		// error streak preceded it is over regardless of what
		// validation below finds.
		f.state.ConsecutiveErrors = 0

		validationFailed, err := f.validateIteration(ctx)
		if err != nil {
			return ReasonNone, fmt.Errorf("validate: %w", err)
		}

		if validationFailed {
			f.state.Iteration++
			f.state.LastIterationAt = f.deps.Clock.Now()
			if err := f.persist(); err != nil {
				return ReasonNone, err
			}
			if f.deps.Progress != nil {
				f.deps.Progress.Update(f.snapshot())
			}
			continue
		}

		if err := f.postIter(ctx); err != nil {
			return ReasonNone, fmt.Errorf("post_iter: %w", err)
		}

		f.state.Iteration++
		f.state.LastIterationAt = f.deps.Clock.Now()
		f.logEvent(eventIterationComplete, map[string]any{"idle_iterations": f.state.IdleIterations})
		if err := f.persist(); err != nil {
			return ReasonNone, err
		}

		if f.deps.Progress != nil {
			f.deps.Progress.Update(f.snapshot())
		}
	}
}

// checkTerminal evaluates the five terminal conditions in strict
// priority order, at the top of every iteration before any PrepIter
// side effect runs.
func (f *FSM) checkTerminal(ctx context.Context) TerminalReason {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	if f.state.MaxIterations != nil && f.state.Iteration >= *f.state.MaxIterations {
		return ReasonMaxReached
	}
	if f.cfg.Completion.IdleThreshold >= 1 && f.state.IdleIterations >= f.cfg.Completion.IdleThreshold {
		return ReasonIdleComplete
	}
	if f.cfg.Monitoring.MaxConsecutiveErrors > 0 && f.state.ConsecutiveErrors >= f.cfg.Monitoring.MaxConsecutiveErrors {
		return ReasonCircuitTripped
	}
	if f.state.CompletionPromise != "" && f.state.PromiseMatched {
		return ReasonPromiseMatched
	}
	return ReasonNone
}

// prepIter loads the mode's prompt, folds in any pending validation
// failure verbatim, resets the pending-error field, and records the
// current HEAD for idle detection after this iteration.
func (f *FSM) prepIter() (string, error) {
	prompt, err := f.deps.Prompts.Load(f.state.Mode)
	if err != nil {
		return "", fmt.Errorf("loading prompt: %w", err)
	}

	if f.state.PendingValidationError != "" {
		prompt = validate.AppendFailure(prompt, validate.Result{Output: f.state.PendingValidationError})
		f.state.PendingValidationError = ""
	}

	head, err := f.deps.Git.HeadCommit(context.Background())
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	f.state.LastCommit = head

	f.logEvent(eventIterationStart, nil)
	return prompt, nil
}

// runAgent dispatches the prompt to the agent adapter. When a sandbox
// session is configured, the call is routed through Session.Exec so
// the agent actually runs inside the per-branch container rather than
// on the host; the driver's Argv builds the command line for that
// boundary, and ClassifyResult applies the same error taxonomy to the
// session's (string, error) result that Invoke's direct exec path
// gets from runCommand.
func (f *FSM) runAgent(ctx context.Context, prompt string) (string, agentdriver.ErrorKind, error) {
	f.logEvent(eventAgentStart, nil)

	inv := agentdriver.Invocation{
		Prompt:  prompt,
		WorkDir: f.deps.Worktree,
		Timeout: time.Duration(f.agentTimeoutMinutes()) * time.Minute,
	}

	var result agentdriver.Result
	var err error
	if f.deps.Sandbox != nil {
		raw, execErr := f.deps.Sandbox.Exec(ctx, f.deps.Driver.Argv(inv))
		result, err = agentdriver.ClassifyResult(ctx, raw, execErr, f.deps.Driver.Name())
	} else {
		result, err = f.deps.Driver.Invoke(ctx, inv)
	}

	if err != nil {
		kind := agentdriver.AsKind(err)
		f.logEvent(eventAgentEnd, map[string]any{"kind": kind.String()})
		return result.Output, kind, err
	}
	f.logEvent(eventAgentEnd, map[string]any{"kind": agentdriver.KindNone.String()})
	return result.Output, agentdriver.KindNone, nil
}

// agentTimeoutMinutes returns the configured per-iteration timeout for
// whichever agent provider is active.
func (f *FSM) agentTimeoutMinutes() int {
	if f.cfg.Agent.Provider == config.ProviderCursor {
		return f.cfg.Agent.Cursor.TimeoutMinutes
	}
	return f.cfg.Agent.Claude.TimeoutMinutes
}

// validateIteration runs the configured validator, if enabled, and
// folds a non-zero exit into pending_validation_error for the next
// PrepIter. The caller is responsible for the consecutive-errors reset
// on the agent's own success; a validation failure reports failed=true
// so Run can skip the commit/push and idle-detection steps and fold
// the error into the next iteration's prompt instead.
func (f *FSM) validateIteration(ctx context.Context) (failed bool, err error) {
	if f.deps.Validator == nil {
		return false, nil
	}
	f.logEvent(eventValidationStart, nil)

	result, err := f.deps.Validator.Run(ctx, f.deps.Worktree)
	if err != nil {
		return false, fmt.Errorf("running validator: %w", err)
	}

	if result.Passed {
		f.logEvent(eventValidationEnd, map[string]any{"passed": true})
		return false, nil
	}

	f.state.PendingValidationError = result.Output
	f.logEvent(eventValidationEnd, map[string]any{"passed": false, "output": result.FirstLines(5)})
	if f.deps.Notifier != nil {
		_ = f.deps.Notifier.Dispatch(ctx, notify.Event{
			Event: "error", Branch: f.branch, Iteration: f.state.Iteration,
			Message: result.FirstLines(5), Timestamp: f.deps.Clock.Now(),
		})
	}
	return true, nil
}

// postIter compares current HEAD to the commit recorded at the start
// of this iteration, updates idle tracking, pushes on change if
// configured, and checks the most recent agent output for the
// operator-configured completion promise.
func (f *FSM) postIter(ctx context.Context) error {
	head, err := f.deps.Git.HeadCommit(ctx)
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}

	if head != f.state.LastCommit {
		f.state.IdleIterations = 0
		f.logEvent(eventCommit, map[string]any{"head": head})
		if f.cfg.Git.AutoPush && !git.IsProtectedBranch(f.branch, f.cfg.Git.ProtectedBranches) {
			if err := f.deps.Git.Push(ctx, f.deps.GitLockPath, "origin", f.branch); err != nil {
				return fmt.Errorf("auto-push: %w", err)
			}
			f.logEvent(eventPush, map[string]any{"branch": f.branch})
		}
	} else {
		f.state.IdleIterations++
	}
	f.state.LastCommit = head

	if f.state.CompletionPromise != "" && !f.state.PromiseMatched &&
		strings.Contains(f.lastOutput, f.state.CompletionPromise) {
		f.state.PromiseMatched = true
	}

	return nil
}

// backoff waits min(2^consecutive_errors, 60) seconds before the next
// PrepIter, on classified transient errors (rate limit, transport).
func (f *FSM) backoff(ctx context.Context) error {
	seconds := backoffSeconds(f.state.ConsecutiveErrors)

	select {
	case <-f.deps.Clock.After(time.Duration(seconds) * time.Second):
		return nil
	case <-ctx.Done():
		return nil
	}
}

// backoffSeconds computes min(2^n, 60) seconds of exponential backoff.
// n is capped before exponentiation to avoid overflow for large
// consecutive-error counts.
func backoffSeconds(consecutiveErrors uint64) uint64 {
	if consecutiveErrors > 6 {
		return 60
	}
	v := uint64(1) << consecutiveErrors
	if v > 60 {
		return 60
	}
	return v
}

func (f *FSM) persist() error {
	return state.Save(f.deps.StatePath, f.state)
}

func (f *FSM) logEvent(event string, detail map[string]any) {
	if f.deps.Logger == nil {
		return
	}
	if f.deps.RunID != "" {
		if detail == nil {
			detail = map[string]any{}
		}
		detail["run_id"] = f.deps.RunID
	}
	_ = f.deps.Logger.Log(obslog.Record{
		Branch: f.branch, Iteration: f.state.Iteration, Event: event, Detail: detail,
	})
}

func (f *FSM) snapshot() progress.Snapshot {
	return progress.Snapshot{
		Branch:     f.branch,
		Iteration:  f.state.Iteration,
		Elapsed:    f.deps.Clock.Now().Sub(f.startedAt),
		Errors:     f.state.ErrorCount,
		LastCommit: f.state.LastCommit,
		LastError:  f.state.LastError,
	}
}
