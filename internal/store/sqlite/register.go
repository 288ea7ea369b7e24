// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package sqlite

import (
	"path/filepath"

	"github.com/inkwell-dev/inkwell/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(dataDir string) (store.Store, error) {
		return NewStore(filepath.Join(dataDir, "inkwell.db"))
	})
}
