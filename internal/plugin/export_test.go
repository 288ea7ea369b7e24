// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package plugin

import "github.com/inkwell-dev/inkwell/pkg/toolapi"

// Install registers a live tool implementation without launching a
// plugin process.
func (h *Host) Install(m *Manifest, tool toolapi.RemoteTool) error {
	return h.install(m, nil, tool)
}
