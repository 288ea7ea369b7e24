// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

//go:embed inkwell.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/inkwell/inkwell.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, ".config", "inkwell", "inkwell.yaml"), nil
}

// Bootstrap writes the commented default config to path if nothing is
// there yet and returns the path written. A failure is logged and
// skipped; running on defaults is always possible.
func Bootstrap() string {
	path, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(path); err == nil {
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", filepath.Dir(path), "error", err)
		return ""
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}
