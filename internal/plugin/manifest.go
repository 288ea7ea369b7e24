// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package plugin loads out-of-process tool plugins: it discovers
// manifest directories, launches plugin binaries over go-plugin's
// net/rpc protocol, and routes remote tool calls to the owning process.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// ManifestFile is the file every plugin directory must carry.
const ManifestFile = "manifest.yaml"

// toolNameRe matches valid tool names: snake_case, starting with a
// letter, the same shape the built-in tools use.
var toolNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// semverRe matches strict semver (no "v" prefix): MAJOR.MINOR.PATCH
// with optional prerelease and build metadata. Leading zeros on numeric
// segments are disallowed per the semver spec.
var semverRe = regexp.MustCompile(
	`^(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)` +
		`(?:-(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
		`(?:\+(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// Manifest describes one tool plugin: the binary to launch and the tools
// it contributes to the session tool table.
type Manifest struct {
	Name    string     `yaml:"name"`
	Version string     `yaml:"version"`
	Binary  string     `yaml:"binary"`
	Tools   []ToolDecl `yaml:"tools"`
}

// ToolDecl declares one tool a plugin serves. Schema is the JSON schema
// forwarded to model backends verbatim.
type ToolDecl struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	DefaultApproval bool           `yaml:"default_approval"`
	Schema          map[string]any `yaml:"schema,omitempty"`
}

// ParseManifest parses YAML data into a Manifest and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, inkerr.Errorf(inkerr.CodePluginManifestInvalid,
			"manifest parse: %s", err)
	}
	if errs := m.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, inkerr.Wrap(err, inkerr.CodePluginManifestInvalid,
			"read manifest "+path)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, inkerr.With(err, inkerr.Field("path", path))
	}
	return m, nil
}

// Validate checks that the Manifest is well-formed. It returns all
// validation errors found rather than stopping at the first one.
func (m *Manifest) Validate() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, inkerr.Errorf(inkerr.CodePluginManifestInvalid,
			"manifest validation: "+format, args...))
	}

	if strings.TrimSpace(m.Name) == "" {
		invalid("name must not be empty")
	} else if !toolNameRe.MatchString(m.Name) {
		invalid("name %q must be snake_case starting with a letter", m.Name)
	}

	if strings.TrimSpace(m.Version) == "" {
		invalid("version must not be empty")
	} else if !semverRe.MatchString(m.Version) {
		invalid("version must be valid semver (MAJOR.MINOR.PATCH), got %q", m.Version)
	}

	if strings.TrimSpace(m.Binary) == "" {
		invalid("binary must not be empty")
	} else if filepath.IsAbs(m.Binary) || strings.Contains(m.Binary, "..") {
		invalid("binary %q must be a relative path inside the plugin directory", m.Binary)
	}

	if len(m.Tools) == 0 {
		invalid("at least one tool is required")
	}

	seen := make(map[string]bool, len(m.Tools))
	for i, tool := range m.Tools {
		switch {
		case strings.TrimSpace(tool.Name) == "":
			invalid("tools[%d]: name must not be empty", i)
		case !toolNameRe.MatchString(tool.Name):
			invalid("tools[%d]: name %q must be snake_case starting with a letter", i, tool.Name)
		case seen[tool.Name]:
			invalid("tools[%d]: duplicate tool name %q", i, tool.Name)
		}
		seen[tool.Name] = true

		if strings.TrimSpace(tool.Description) == "" {
			invalid("tools[%d]: description must not be empty", i)
		}
	}

	return errs
}

// BinaryPath resolves the plugin binary relative to its directory.
func (m *Manifest) BinaryPath(dir string) string {
	return filepath.Join(dir, m.Binary)
}

// Discovered pairs a parsed manifest with the directory it came from.
type Discovered struct {
	Dir      string
	Manifest *Manifest
}

// Discover scans the immediate subdirectories of root for plugin
// manifests. A missing root is not an error; it just means no plugins.
// Directories with invalid manifests fail discovery so a broken install
// is noticed rather than silently skipped.
func Discover(root string) ([]Discovered, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, inkerr.Wrap(err, inkerr.CodePluginDiscoveryFailure,
			"read plugin directory "+root)
	}

	var found []Discovered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, ManifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, inkerr.Wrap(err, inkerr.CodePluginDiscoveryFailure,
				"stat "+manifestPath)
		}

		m, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		found = append(found, Discovered{Dir: dir, Manifest: m})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Manifest.Name < found[j].Manifest.Name
	})

	if err := checkToolCollisions(found); err != nil {
		return nil, err
	}
	return found, nil
}

// checkToolCollisions rejects two plugins declaring the same tool name.
func checkToolCollisions(found []Discovered) error {
	owner := make(map[string]string)
	for _, d := range found {
		for _, tool := range d.Manifest.Tools {
			if prev, ok := owner[tool.Name]; ok {
				return inkerr.New(inkerr.CodePluginManifestInvalid,
					fmt.Sprintf("tool %q declared by both %s and %s", tool.Name, prev, d.Manifest.Name))
			}
			owner[tool.Name] = d.Manifest.Name
		}
	}
	return nil
}
