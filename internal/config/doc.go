// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates ralph.toml, the single source of
// truth for a loop run. See Config for the section layout; Load is the
// only entry point that should be used outside of tests.
package config
