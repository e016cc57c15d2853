// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package obslog

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// gzipAndRemove compresses path to path+".gz" and removes the
// original, the same "compress a finished artifact, drop the
// uncompressed form" shape the artifact store uses for chunk
// compression — here applied to a whole rotated log file rather than a
// content-addressed chunk.
func gzipAndRemove(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for compression: %w", path, err)
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("creating %s.gz: %w", path, err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return fmt.Errorf("closing gzip writer for %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s.gz: %w", path, err)
	}
	return os.Remove(path)
}
