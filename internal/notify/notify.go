// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify dispatches fire-and-forget notifications on
// terminal-complete and on-error events, via webhook, desktop, sound,
// or no backend at all.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/ralph-dev/ralph/lib/netutil"
)

// Backend selects the dispatch mechanism.
type Backend string

const (
	BackendWebhook Backend = "webhook"
	BackendDesktop Backend = "desktop"
	BackendSound   Backend = "sound"
	BackendNone    Backend = "none"
)

// Event is the JSON payload shape a webhook backend POSTs, per spec
// §4.5: {event, branch, iteration, message, ts}.
type Event struct {
	Event     string    `json:"event"`
	Branch    string    `json:"branch"`
	Iteration uint64    `json:"iteration"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Dispatcher sends one Event through a configured backend.
type Dispatcher struct {
	Backend    Backend
	WebhookURL string
	httpClient *http.Client
}

// NewDispatcher returns a Dispatcher for the given backend and (for
// webhook) target URL.
func NewDispatcher(backend Backend, webhookURL string) *Dispatcher {
	return &Dispatcher{
		Backend:    backend,
		WebhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch sends event through the configured backend. Errors are
// returned for logging, not for retry — every caller in this system
// treats notification delivery as fire-and-forget per §4.5.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	switch d.Backend {
	case BackendWebhook:
		return d.dispatchWebhook(ctx, event)
	case BackendDesktop:
		return dispatchDesktop(event)
	case BackendSound:
		return dispatchSound()
	case BackendNone, "":
		return nil
	default:
		return fmt.Errorf("unknown notification backend %q", d.Backend)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s: %s", resp.Status, netutil.ErrorBody(resp.Body))
	}
	return nil
}

// desktopCommands lists platform-detected notification commands in
// priority order; the first one found on PATH is used.
var desktopCommands = []struct {
	binary string
	build  func(event Event) []string
}{
	{"notify-send", func(e Event) []string { return []string{e.Event, e.Message} }},
	{"osascript", func(e Event) []string {
		script := fmt.Sprintf(`display notification %q with title %q`, e.Message, e.Event)
		return []string{"-e", script}
	}},
	{"growlnotify", func(e Event) []string { return []string{"-m", e.Message, "-t", e.Event} }},
}

func dispatchDesktop(event Event) error {
	for _, candidate := range desktopCommands {
		path, err := exec.LookPath(candidate.binary)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, candidate.build(event)...)
		return cmd.Run()
	}
	return fmt.Errorf("no desktop notification command found (looked for notify-send, osascript, growlnotify)")
}

// soundCommands mirrors desktopCommands' detect-then-run shape for an
// audible notification; falling back to a terminal bell when none of
// these are present.
var soundCommands = []struct {
	binary string
	args   []string
}{
	{"canberra-gtk-play", []string{"-i", "complete"}},
	{"afplay", []string{"/System/Library/Sounds/Glass.aiff"}},
}

func dispatchSound() error {
	for _, candidate := range soundCommands {
		path, err := exec.LookPath(candidate.binary)
		if err != nil {
			continue
		}
		return exec.Command(path, candidate.args...).Run()
	}
	_, err := os.Stdout.WriteString("\a")
	return err
}
