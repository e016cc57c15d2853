// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "os"

// pathExists reports whether path exists on the host, used to decide
// which configured credential mounts are actually bound into a
// container — only paths present on the host are mounted.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
