// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package obslog is the append-only structured event log: one record
// per significant FSM event, JSON or text, daily/hourly/never rotated.
// The active file is always loop.log; rotated copies carry a date
// suffix and are gzip-compressed in place.
package obslog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ralph-dev/ralph/internal/lock"
)

// Format selects the record encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Rotation selects the wall-clock rotation cadence.
type Rotation string

const (
	RotationDaily  Rotation = "daily"
	RotationHourly Rotation = "hourly"
	RotationNever  Rotation = "never"
)

// Logger appends structured event records to an active log file,
// rotating it on wall-clock boundaries.
type Logger struct {
	path     string
	format   Format
	rotation Rotation
	lockPath string

	file   *os.File
	marker time.Time // rotation boundary this file was opened for
}

// Open opens (creating if necessary) the active log file at path and
// returns a Logger wrapping it. Branch and iteration are supplied
// per-call on Record, not fixed at Open time, since one process may
// log events for several branches (the scheduler) or none yet
// (startup).
func Open(path string, format Format, rotation Rotation) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	l := &Logger{
		path:     path,
		format:   format,
		rotation: rotation,
		lockPath: path + ".lock",
	}
	if err := l.openActive(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) openActive() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", l.path, err)
	}
	l.file = file
	l.marker = rotationBoundary(time.Now().UTC(), l.rotation)
	return nil
}

// rotationBoundary returns the start of the rotation window containing
// t, used both to decide whether a rotation is due and to name the
// rotated file.
func rotationBoundary(t time.Time, r Rotation) time.Time {
	switch r {
	case RotationHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case RotationNever:
		return time.Time{}
	default: // RotationDaily
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// maybeRotate rotates the active file under an exclusive lock if the
// current wall-clock boundary has advanced past the one the open file
// was created for. The lock prevents two FSM processes sharing one log
// file from both renaming it at once.
func (l *Logger) maybeRotate() error {
	if l.rotation == RotationNever {
		return nil
	}
	current := rotationBoundary(time.Now().UTC(), l.rotation)
	if !current.After(l.marker) {
		return nil
	}

	lk, err := lock.Acquire(l.lockPath)
	if err != nil {
		if err == lock.ErrHeld {
			// Another process is rotating concurrently; reopen and
			// keep writing to whatever is active under l.path.
			return l.reopen()
		}
		return fmt.Errorf("acquiring rotation lock: %w", err)
	}
	defer lk.Release()

	// Re-check under the lock: another process may have rotated
	// already while we were waiting.
	current = rotationBoundary(time.Now().UTC(), l.rotation)
	if !current.After(l.marker) {
		return l.reopen()
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing active log before rotation: %w", err)
	}

	rotatedPath := l.path + "." + l.marker.Format("2006-01-02T15")
	if err := os.Rename(l.path, rotatedPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", l.path, rotatedPath, err)
	}
	if err := gzipAndRemove(rotatedPath); err != nil {
		return fmt.Errorf("compressing rotated log %s: %w", rotatedPath, err)
	}
	return l.openActive()
}

// reopen re-attaches the logger to whatever file currently lives at
// l.path, without renaming anything — used when another process
// already performed the rotation.
func (l *Logger) reopen() error {
	if l.file != nil {
		_ = l.file.Close()
	}
	return l.openActive()
}

// Record describes one structured event: timestamp, branch, iteration,
// event name, and an event-specific detail payload. Field order and
// names here are load-bearing — downstream tooling greps the raw log
// lines for "event":"<name>" rather than parsing every record.
type Record struct {
	Branch    string
	Iteration uint64
	Event     string
	Detail    map[string]any
}

// wireRecord fixes the on-disk field order and names: ts, branch,
// iteration, event, detail — nothing more, nothing renamed.
type wireRecord struct {
	TS        string         `json:"ts"`
	Branch    string         `json:"branch"`
	Iteration uint64         `json:"iteration"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
}

// Log writes one record, rotating first if a boundary was crossed.
func (l *Logger) Log(r Record) error {
	if err := l.maybeRotate(); err != nil {
		return err
	}
	wr := wireRecord{
		TS:        time.Now().UTC().Format(time.RFC3339),
		Branch:    r.Branch,
		Iteration: r.Iteration,
		Event:     r.Event,
		Detail:    r.Detail,
	}

	var line string
	if l.format == FormatText {
		line = fmt.Sprintf("ts=%s branch=%s iteration=%d event=%s detail=%v\n",
			wr.TS, wr.Branch, wr.Iteration, wr.Event, wr.Detail)
	} else {
		encoded, err := json.Marshal(wr)
		if err != nil {
			return fmt.Errorf("encoding log record: %w", err)
		}
		line = string(encoded) + "\n"
	}

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("writing log record: %w", err)
	}
	return nil
}

// Close closes the active log file.
func (l *Logger) Close() error {
	return l.file.Close()
}
