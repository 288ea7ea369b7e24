// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package plugin_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/plugin"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

func validManifest() *plugin.Manifest {
	return &plugin.Manifest{
		Name:    "notes",
		Version: "1.2.0",
		Binary:  "bin/notes-plugin",
		Tools: []plugin.ToolDecl{
			{Name: "fetch_notes", Description: "Fetch research notes by topic."},
		},
	}
}

func writePlugin(t *testing.T, root, dir, body string) string {
	t.Helper()

	full := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, plugin.ManifestFile), []byte(body), 0o644))
	return full
}

func TestParseManifest(t *testing.T) {
	data := []byte(`
name: notes
version: 1.2.0
binary: bin/notes-plugin
tools:
  - name: fetch_notes
    description: Fetch research notes by topic.
    default_approval: true
    schema:
      type: object
      properties:
        topic:
          type: string
      required: [topic]
  - name: list_topics
    description: List known note topics.
`)

	m, err := plugin.ParseManifest(data)
	require.NoError(t, err)

	assert.Equal(t, "notes", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, "bin/notes-plugin", m.Binary)
	require.Len(t, m.Tools, 2)

	fetch := m.Tools[0]
	assert.Equal(t, "fetch_notes", fetch.Name)
	assert.True(t, fetch.DefaultApproval)
	assert.Equal(t, "object", fetch.Schema["type"])

	assert.False(t, m.Tools[1].DefaultApproval)
	assert.Nil(t, m.Tools[1].Schema)
}

func TestParseManifestRejectsBadYAML(t *testing.T) {
	_, err := plugin.ParseManifest([]byte("{{definitely not yaml"))

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginManifestInvalid))
	assert.Contains(t, err.Error(), "manifest parse")
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *plugin.Manifest)
		wantErr string
	}{
		{
			name:   "valid manifest passes",
			mutate: func(m *plugin.Manifest) {},
		},
		{
			name:    "empty name",
			mutate:  func(m *plugin.Manifest) { m.Name = "" },
			wantErr: "name must not be empty",
		},
		{
			name:    "name not snake_case",
			mutate:  func(m *plugin.Manifest) { m.Name = "Notes-Plugin" },
			wantErr: "snake_case",
		},
		{
			name:    "empty version",
			mutate:  func(m *plugin.Manifest) { m.Version = "" },
			wantErr: "version must not be empty",
		},
		{
			name:    "version with v prefix",
			mutate:  func(m *plugin.Manifest) { m.Version = "v1.2.0" },
			wantErr: "valid semver",
		},
		{
			name:    "version with leading zero",
			mutate:  func(m *plugin.Manifest) { m.Version = "1.02.0" },
			wantErr: "valid semver",
		},
		{
			name:   "version with prerelease and build",
			mutate: func(m *plugin.Manifest) { m.Version = "2.0.0-rc.1+build.7" },
		},
		{
			name:    "empty binary",
			mutate:  func(m *plugin.Manifest) { m.Binary = "" },
			wantErr: "binary must not be empty",
		},
		{
			name:    "absolute binary path",
			mutate:  func(m *plugin.Manifest) { m.Binary = "/usr/local/bin/notes" },
			wantErr: "relative path",
		},
		{
			name:    "binary path escaping the directory",
			mutate:  func(m *plugin.Manifest) { m.Binary = "../elsewhere/notes" },
			wantErr: "relative path",
		},
		{
			name:    "no tools",
			mutate:  func(m *plugin.Manifest) { m.Tools = nil },
			wantErr: "at least one tool",
		},
		{
			name: "tool name not snake_case",
			mutate: func(m *plugin.Manifest) {
				m.Tools[0].Name = "Fetch-Notes"
			},
			wantErr: "snake_case",
		},
		{
			name: "duplicate tool name",
			mutate: func(m *plugin.Manifest) {
				m.Tools = append(m.Tools, plugin.ToolDecl{
					Name: "fetch_notes", Description: "Fetch them again.",
				})
			},
			wantErr: "duplicate tool name",
		},
		{
			name: "tool without description",
			mutate: func(m *plugin.Manifest) {
				m.Tools[0].Description = "   "
			},
			wantErr: "description must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)

			errs := m.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}

			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
			assert.True(t, inkerr.HasCode(errs[0], inkerr.CodePluginManifestInvalid))
		})
	}
}

func TestManifestValidateCollectsEveryProblem(t *testing.T) {
	m := &plugin.Manifest{}

	errs := m.Validate()

	// Name, version, binary, and the missing tool list each count.
	assert.Len(t, errs, 4)
}

func TestBinaryPath(t *testing.T) {
	m := validManifest()

	got := m.BinaryPath(filepath.Join("plugins", "notes"))

	assert.Equal(t, filepath.Join("plugins", "notes", "bin", "notes-plugin"), got)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	// Directory names sort opposite to manifest names to prove the order
	// comes from the manifest.
	zebraDir := writePlugin(t, root, "zebra", `
name: archive
version: 0.3.1
binary: archive-plugin
tools:
  - name: archive_draft
    description: Snapshot the draft into the archive.
`)
	alphaDir := writePlugin(t, root, "alpha", `
name: notes
version: 1.0.0
binary: notes-plugin
tools:
  - name: fetch_notes
    description: Fetch research notes by topic.
`)

	// A bare directory and a stray file are both ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-plugin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0o644))

	found, err := plugin.Discover(root)
	require.NoError(t, err)

	require.Len(t, found, 2)
	assert.Equal(t, "archive", found[0].Manifest.Name)
	assert.Equal(t, zebraDir, found[0].Dir)
	assert.Equal(t, "notes", found[1].Manifest.Name)
	assert.Equal(t, alphaDir, found[1].Dir)
}

func TestDiscoverMissingRootIsEmpty(t *testing.T) {
	found, err := plugin.Discover(filepath.Join(t.TempDir(), "does-not-exist"))

	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscoverFailsOnInvalidManifest(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "broken", `
name: broken
version: not-semver
binary: broken-plugin
tools:
  - name: break_things
    description: Break things.
`)

	_, err := plugin.Discover(root)

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginManifestInvalid))
	assert.Contains(t, err.Error(), "valid semver")
}

func TestDiscoverRejectsToolCollisions(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "first", `
name: notes_a
version: 1.0.0
binary: plugin-a
tools:
  - name: fetch_notes
    description: Fetch notes.
`)
	writePlugin(t, root, "second", `
name: notes_b
version: 1.0.0
binary: plugin-b
tools:
  - name: fetch_notes
    description: Also fetch notes.
`)

	_, err := plugin.Discover(root)

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginManifestInvalid))
	assert.Contains(t, err.Error(), `tool "fetch_notes" declared by both notes_a and notes_b`)
}
