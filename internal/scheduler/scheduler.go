// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler fans a plan document out into one iteration FSM
// per branch, materializing a worktree for each and aggregating their
// terminal results into a summary.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ralph-dev/ralph/internal/agentdriver"
	"github.com/ralph-dev/ralph/internal/config"
	"github.com/ralph-dev/ralph/internal/git"
	"github.com/ralph-dev/ralph/internal/lock"
	"github.com/ralph-dev/ralph/internal/loop"
	"github.com/ralph-dev/ralph/internal/notify"
	"github.com/ralph-dev/ralph/internal/obslog"
	"github.com/ralph-dev/ralph/internal/plan"
	"github.com/ralph-dev/ralph/internal/prcreate"
	"github.com/ralph-dev/ralph/internal/progress"
	"github.com/ralph-dev/ralph/internal/sandbox"
	"github.com/ralph-dev/ralph/internal/state"
	"github.com/ralph-dev/ralph/internal/validate"
	"github.com/ralph-dev/ralph/lib/clock"
)

// LockPath returns the advisory lock path for a branch, keyed by its
// sanitized container name (sandbox.ContainerName(branch) — also the
// name its .worktrees/ directory and sandbox container carry). A live
// branch holds this lock for its entire run, the same file
// sandbox.CleanOrphans and Clean consult to tell a live branch from an
// abandoned one; "ralph status" and "ralph cancel" read it too.
func LockPath(rootDir, containerName string) string {
	return filepath.Join(rootDir, ".ralph", "locks", containerName+".lock")
}

// BranchResult is one branch's outcome, the unit of the scheduler's
// final summary table.
type BranchResult struct {
	Branch     string
	Reason     loop.TerminalReason
	Iterations uint64
	Commits    int
	LastCommit string
	LastError  string
	PRURL      string
	Err        error
}

// Options configures one scheduler run.
type Options struct {
	Mode          state.Mode
	Provider      string // CLI --provider override, highest priority
	Sequential    bool
	NoSandbox     bool
	Unlimited     bool
	MaxIterations *uint64
	Promise       string
	PromptPath    string // --prompt FILE override, applies to every branch
}

// Scheduler drives every branch named in a plan document to a
// terminal state.
type Scheduler struct {
	cfg          *config.Config
	repo         *git.Repository // the bare/primary repository
	rootDir      string          // repository working root, holds .worktrees, .ralph
	worktreeRoot string
}

// New returns a Scheduler rooted at rootDir, the directory holding
// ralph.toml, IMPLEMENTATION_PLAN.md, and .worktrees/.
func New(cfg *config.Config, repo *git.Repository, rootDir string) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		repo:         repo,
		rootDir:      rootDir,
		worktreeRoot: filepath.Join(rootDir, ".worktrees"),
	}
}

// Run parses planPath, materializes a worktree per branch with at
// least one unchecked task, and fans the branches out to completion
// per §4.3 — concurrently by default, one FSM at a time when
// opts.Sequential is set.
func (s *Scheduler) Run(ctx context.Context, planPath string, opts Options) ([]BranchResult, error) {
	source, err := os.ReadFile(planPath)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	doc, err := plan.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	var active []plan.Branch
	for _, b := range doc.Branches {
		if hasUnchecked(b) {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	lockPath := filepath.Join(s.rootDir, ".ralph", "git.lock")
	branchRepos := make(map[string]*git.Repository, len(active))
	for _, b := range active {
		base := b.Base
		if base == "" {
			base = s.cfg.Git.PRBase
		}
		worktreePath := filepath.Join(s.worktreeRoot, sandbox.ContainerName(b.Name))
		if err := s.repo.WorktreeAdd(ctx, lockPath, worktreePath, b.Name, base); err != nil {
			return nil, fmt.Errorf("materializing worktree for %s: %w", b.Name, err)
		}

		branchRepo := git.NewRepository(worktreePath)
		if err := branchRepo.SetWorktreeConfig(ctx, s.cfg.Git.Worktree.Name, s.cfg.Git.Worktree.Email,
			s.cfg.Git.Worktree.SigningKey, s.cfg.Git.Worktree.SSHKey); err != nil {
			return nil, fmt.Errorf("configuring worktree for %s: %w", b.Name, err)
		}
		if err := copyPlan(planPath, worktreePath); err != nil {
			return nil, fmt.Errorf("copying plan into worktree for %s: %w", b.Name, err)
		}
		branchRepos[b.Name] = branchRepo
	}

	runBranch := func(b plan.Branch) BranchResult {
		result := BranchResult{Branch: b.Name}
		repo := branchRepos[b.Name]
		startHead, _ := repo.HeadCommit(ctx)

		st, fsm, onComplete, cleanup, err := s.buildFSM(repo, b.Name, opts)
		if err != nil {
			result.Err = err
			return result
		}
		defer cleanup()

		reason, err := fsm.Run(ctx)
		result.Reason = reason
		result.Iterations = st.Iteration
		result.LastCommit = st.LastCommit
		result.LastError = st.LastError
		result.Commits = countCommits(ctx, repo, startHead)
		if err != nil {
			result.Err = err
			return result
		}

		if onComplete != nil && reason != loop.ReasonCancelled {
			_ = onComplete.Dispatch(ctx, notify.Event{
				Event: "terminal", Branch: b.Name, Iteration: st.Iteration,
				Message: string(reason), Timestamp: clock.Real().Now(),
			})
		}

		if s.cfg.Git.AutoPR && reason != loop.ReasonCancelled {
			base := b.Base
			if base == "" {
				base = s.cfg.Git.PRBase
			}
			url, prErr := prcreate.Create(ctx, prcreate.Request{
				Dir: branchRepos[b.Name].Dir(), Base: base, Head: b.Name,
				Title: fmt.Sprintf("ralph: %s", b.Name), Body: b.Goal,
			})
			if prErr == nil {
				result.PRURL = url
			}
		}
		return result
	}

	var results []BranchResult
	if opts.Sequential {
		for _, b := range active {
			results = append(results, runBranch(b))
		}
	} else {
		var mu sync.Mutex
		var wg sync.WaitGroup
		results = make([]BranchResult, 0, len(active))
		for _, b := range active {
			wg.Add(1)
			go func(b plan.Branch) {
				defer wg.Done()
				r := runBranch(b)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}(b)
		}
		wg.Wait()
		sort.Slice(results, func(i, j int) bool { return results[i].Branch < results[j].Branch })
	}

	return results, nil
}

// countCommits returns how many commits landed on top of startHead by
// the time the branch's FSM returned, for the summary table's
// "commits" column. A lookup failure is reported as zero rather than
// failing the whole branch result.
func countCommits(ctx context.Context, repo *git.Repository, startHead string) int {
	if startHead == "" {
		return 0
	}
	out, err := repo.Run(ctx, "rev-list", "--count", startHead+"..HEAD")
	if err != nil {
		return 0
	}
	n := 0
	for _, r := range strings.TrimSpace(out) {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func hasUnchecked(b plan.Branch) bool {
	for _, t := range b.Tasks {
		if !t.Done {
			return true
		}
	}
	return false
}

func copyPlan(planPath, worktreePath string) error {
	data, err := os.ReadFile(planPath)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(worktreePath, filepath.Base(planPath)), data, 0644)
}

// buildFSM assembles one branch's loop.FSM and every collaborator it
// needs, returning a cleanup func that disposes the sandbox session
// and closes the log file.
func (s *Scheduler) buildFSM(repo *git.Repository, branch string, opts Options) (*state.LoopState, *loop.FSM, *notify.Dispatcher, func(), error) {
	statePath := filepath.Join(repo.Dir(), ".ralph", "state.toml")

	branchLock, err := lock.Acquire(LockPath(s.rootDir, sandbox.ContainerName(branch)))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("branch %s: %w", branch, err)
	}
	// Every early return below must release the lock; only the final
	// success path hands release ownership to the returned cleanup func.
	releaseLock := true
	defer func() {
		if releaseLock {
			_ = branchLock.Release()
		}
	}()

	st, err := state.Load(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, nil, nil, fmt.Errorf("loading state: %w", err)
		}
		st = state.New(branch, opts.Mode)
	}
	if opts.Unlimited {
		st.MaxIterations = nil
	} else if opts.MaxIterations != nil {
		st.MaxIterations = opts.MaxIterations
	}
	if opts.Promise != "" {
		// The branch's terminal check only fires once the agent's own
		// output actually contains this substring; setting it here
		// just records the target the operator asked for.
		st.CompletionPromise = opts.Promise
	}

	driver, err := newDriver(s.cfg, opts.Provider)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logPath := s.cfg.Monitoring.LogFile
	if logPath == "" {
		logPath = filepath.Join(repo.Dir(), ".ralph", "loop.log")
	}
	logger, err := obslog.Open(logPath, obslog.Format(s.cfg.Monitoring.LogFormat), obslog.Rotation(s.cfg.Monitoring.LogRotation))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening log: %w", err)
	}

	var onCompleteNotifier, onErrorNotifier *notify.Dispatcher
	if s.cfg.Monitoring.Notifications.OnComplete != "" && s.cfg.Monitoring.Notifications.OnComplete != config.NotifyNone {
		onCompleteNotifier = notify.NewDispatcher(notify.Backend(s.cfg.Monitoring.Notifications.OnComplete), s.cfg.Monitoring.Notifications.WebhookURL)
	}
	if s.cfg.Monitoring.Notifications.OnError != "" && s.cfg.Monitoring.Notifications.OnError != config.NotifyNone {
		onErrorNotifier = notify.NewDispatcher(notify.Backend(s.cfg.Monitoring.Notifications.OnError), s.cfg.Monitoring.Notifications.WebhookURL)
	}

	var validator *validate.Runner
	if s.cfg.Validation.Enabled {
		validator = validate.NewRunner(s.cfg.Validation.Command)
	}

	panelEnabled := s.cfg.Monitoring.ShowProgress && progress.IsTerminalStdout()
	panel := progress.NewPanel(branch, panelEnabled)
	panel.Run()

	var sess Session
	var disposeSandbox func()
	if s.cfg.Sandbox.Enabled && !opts.NoSandbox {
		rt, rtErr := sandbox.DetectRuntime()
		if rtErr != nil {
			return nil, nil, nil, nil, fmt.Errorf("detecting container runtime: %w", rtErr)
		}
		session := sandbox.NewSession(rt, sandbox.Options{
			Branch:           branch,
			Image:            s.cfg.Sandbox.Image,
			UseLocalImage:    s.cfg.Sandbox.UseLocalImage,
			ReuseContainer:   s.cfg.Sandbox.ReuseContainer,
			WorkspaceDir:     repo.Dir(),
			CredentialMounts: s.cfg.Sandbox.CredentialMounts,
			ExtraMounts:      s.cfg.Sandbox.Mounts,
			MemoryLimit:      s.cfg.Sandbox.Resources.Memory,
			CPUs:             s.cfg.Sandbox.Resources.CPUs,
			TimeoutMinutes:   s.cfg.Sandbox.Resources.TimeoutMinutes,
			NetworkPolicy:    sandbox.NetworkPolicy(s.cfg.Sandbox.Network.Policy),
			AllowedHosts:     s.cfg.Sandbox.Network.Allowed,
			DNS:              s.cfg.Sandbox.Network.DNS,
		})
		if startErr := session.Start(context.Background()); startErr != nil {
			return nil, nil, nil, nil, fmt.Errorf("starting sandbox for %s: %w", branch, startErr)
		}
		sess = session
		disposeSandbox = func() { _ = session.Dispose(context.Background()) }
	}

	prompts := &filePromptSource{dir: repo.Dir(), override: opts.PromptPath}

	deps := loop.Deps{
		RunID:       uuid.NewString(),
		Clock:       clock.Real(),
		Git:         repo,
		GitLockPath: filepath.Join(s.rootDir, ".ralph", "git.lock"),
		Driver:      driver,
		Sandbox:     sess,
		Validator:   validator,
		Logger:      logger,
		Notifier:    onErrorNotifier,
		Progress:    panel,
		Prompts:     prompts,
		Worktree:    repo.Dir(),
		StatePath:   statePath,
	}

	fsm := loop.New(branch, s.cfg, st, deps)

	releaseLock = false
	cleanup := func() {
		panel.Stop()
		_ = logger.Close()
		_ = branchLock.Release()
		if disposeSandbox != nil {
			disposeSandbox()
		}
	}

	return st, fsm, onCompleteNotifier, cleanup, nil
}

// Session mirrors loop.Session locally so scheduler.go does not need
// to import loop's unexported details; sandbox.Session already
// satisfies it.
type Session = loop.Session

func newDriver(cfg *config.Config, explicitProvider string) (agentdriver.Driver, error) {
	provider := agentdriver.Select(explicitProvider, os.Getenv("RALPH_PROVIDER"), string(cfg.Agent.Provider))

	switch config.AgentProvider(provider) {
	case config.ProviderCursor:
		path, err := config.BinaryPath(cfg.Agent.Cursor.Path, "cursor-agent")
		if err != nil {
			return nil, fmt.Errorf("%w", &agentdriver.Error{Kind: agentdriver.KindAgentNotFound, Err: err})
		}
		return &agentdriver.Cursor{
			BinaryPath:   path,
			Model:        cfg.Agent.Cursor.Model,
			OutputFormat: cfg.Agent.Cursor.OutputFormat,
		}, nil
	case config.ProviderClaude:
		path, err := config.BinaryPath(cfg.Agent.Claude.Path, "claude")
		if err != nil {
			return nil, fmt.Errorf("%w", &agentdriver.Error{Kind: agentdriver.KindAgentNotFound, Err: err})
		}
		return &agentdriver.Claude{
			BinaryPath:        path,
			Model:             cfg.Agent.Claude.Model,
			OutputFormat:      cfg.Agent.Claude.OutputFormat,
			PermissionBypass:  cfg.Agent.Claude.PermissionBypass,
			Verbose:           cfg.Agent.Claude.Verbose,
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", provider)
	}
}
