// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lock provides advisory, crash-surviving locking for a
// branch's state file. A held lock marks LoopState.Active = true; a
// lock whose holder has died is detected via process liveness rather
// than trusted blindly, the same staleness discipline the watchdog
// atomic-write pattern this package descends from applies to binary
// transition markers.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another live process holds the
// lock.
var ErrHeld = errors.New("lock: held by a live process")

// holderState is the content written into the lock file: enough to
// identify and test the liveness of the holding process.
type holderState struct {
	PID       int       `json:"pid"`
	Acquired  time.Time `json:"acquired"`
	Hostname  string    `json:"hostname"`
}

// Lock represents a held advisory lock on a single file. Release must
// be called exactly once, from the same process that acquired it,
// typically via a deferred call alongside every other scoped resource
// the owning FSM holds.
type Lock struct {
	path string
	file *os.File
}

// Acquire attempts to take the advisory lock at path. It combines an
// OS-level flock (exclusive, non-blocking) for same-host mutual
// exclusion with a PID+timestamp payload written into the file so a
// diagnostic reader (see Holder) can tell who holds it.
//
// If the file is already flock'd by a live process, Acquire returns
// ErrHeld. If the file exists but flock succeeds anyway (the previous
// holder died without releasing, e.g. under SIGKILL, since flock is
// released by the kernel on process exit), Acquire takes the lock and
// overwrites the file. The decision rests on flock alone; Acquire never
// reads the recorded PID.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		// flock is released by the kernel when every fd referencing it
		// closes, including on process death, so a failed non-blocking
		// flock here means a live process holds it. Steal anyway is
		// not attempted — Holder() lets a caller report who.
		file.Close()
		return nil, ErrHeld
	}

	hostname, _ := os.Hostname()
	state := holderState{PID: os.Getpid(), Acquired: time.Now().UTC(), Hostname: hostname}
	if err := writeHolder(file, state); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, err
	}

	return &Lock{path: path, file: file}, nil
}

// IsHeld reports whether the lock at path is currently held by a live
// process, without acquiring it. Used by sandbox orphan cleanup to
// decide whether a container's owning branch is still running.
func IsHeld(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	// A non-blocking attempt to take the lock tells us definitively
	// whether anyone holds it; release immediately if we got it.
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return true
	}
	unix.Flock(int(file.Fd()), unix.LOCK_UN)
	return false
}

// Holder reads the PID/timestamp payload from the lock file at path
// without taking the lock, and reports whether that PID is currently
// alive. Used by `ralph status` to explain a lock it did not itself
// acquire.
func Holder(path string) (pid int, acquired time.Time, alive bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	defer file.Close()

	state, err := readHolder(file)
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return state.PID, state.Acquired, isAlive(state.PID), nil
}

// Release unlocks and removes the lock file. Idempotent.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing lock file: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	l.file = nil
	return nil
}

func readHolder(file *os.File) (holderState, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return holderState{}, err
	}
	var state holderState
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&state); err != nil {
		return holderState{}, err
	}
	return state, nil
}

func writeHolder(file *os.File, state holderState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling lock holder: %w", err)
	}
	data = append(data, '\n')

	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return file.Sync()
}

// isAlive reports whether pid identifies a live process on this host,
// via the null signal (kill(pid, 0)) which performs existence and
// permission checks without delivering anything.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
