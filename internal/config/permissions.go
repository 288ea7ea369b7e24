// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs when the config file is group- or
// world-readable. The file can hold tokens, so other users on the
// machine could read them; startup continues either way.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupOrOtherRead fs.FileMode = 0o044
	if info.Mode().Perm()&groupOrOtherRead != 0 {
		slog.Warn("config file is readable by other users",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}
