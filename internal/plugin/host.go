// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"sync"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/inkwell-dev/inkwell/internal/agent"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/inkwell-dev/inkwell/pkg/toolapi"
)

// HostConfig holds dependencies for a Host.
type HostConfig struct {
	// Dir is the plugin root; each subdirectory with a manifest.yaml is
	// one plugin.
	Dir   string
	Table *agent.ToolTable

	Logger *slog.Logger
}

// Host launches tool plugins and routes remote tool calls to the plugin
// that declared the tool. It satisfies the engine's remote executor.
type Host struct {
	dir   string
	table *agent.ToolTable
	log   *slog.Logger

	mu      sync.Mutex
	plugins map[string]*livePlugin
	owner   map[string]string // tool name -> plugin name
}

var _ agent.RemoteExecutor = (*Host)(nil)

type livePlugin struct {
	manifest *Manifest
	client   *goplugin.Client
	tool     toolapi.RemoteTool
}

// PluginInfo is a running plugin summary for status surfaces.
type PluginInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Tools   []string `json:"tools"`
}

// NewHost creates a Host.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Table == nil {
		return nil, inkerr.New(inkerr.CodePluginStartFailure, "Table is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		dir:     cfg.Dir,
		table:   cfg.Table,
		log:     logger,
		plugins: make(map[string]*livePlugin),
		owner:   make(map[string]string),
	}, nil
}

// Start discovers and launches every plugin under the host directory.
// A plugin that fails to launch is skipped with a warning so one broken
// install does not take the gateway down; invalid manifests still abort,
// since they indicate a broken deployment rather than a flaky binary.
func (h *Host) Start(ctx context.Context) error {
	if h.dir == "" {
		return nil
	}
	found, err := Discover(h.dir)
	if err != nil {
		return err
	}

	for _, d := range found {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.launch(d); err != nil {
			h.log.Warn("plugin launch failed, skipping",
				"plugin", d.Manifest.Name, "dir", d.Dir, "error", err)
			continue
		}
		h.log.Info("plugin started",
			"plugin", d.Manifest.Name, "version", d.Manifest.Version,
			"tools", len(d.Manifest.Tools))
	}
	return nil
}

func (h *Host) launch(d Discovered) error {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  toolapi.HandshakeConfig(),
		Plugins:          toolapi.PluginMap(nil),
		Cmd:              exec.Command(d.Manifest.BinaryPath(d.Dir)),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return inkerr.Wrap(err, inkerr.CodePluginStartFailure,
			"start "+d.Manifest.Name, inkerr.FieldPlugin(d.Manifest.Name))
	}

	raw, err := rpcClient.Dispense(toolapi.PluginName)
	if err != nil {
		client.Kill()
		return inkerr.Wrap(err, inkerr.CodePluginStartFailure,
			"dispense tool plugin from "+d.Manifest.Name, inkerr.FieldPlugin(d.Manifest.Name))
	}
	tool, ok := raw.(toolapi.RemoteTool)
	if !ok {
		client.Kill()
		return inkerr.New(inkerr.CodePluginStartFailure,
			fmt.Sprintf("plugin %s dispensed %T, not a tool", d.Manifest.Name, raw),
			inkerr.FieldPlugin(d.Manifest.Name))
	}

	if err := h.install(d.Manifest, client, tool); err != nil {
		client.Kill()
		return err
	}
	return nil
}

// install registers a plugin's tools in the table and records ownership.
func (h *Host) install(m *Manifest, client *goplugin.Client, tool toolapi.RemoteTool) error {
	for _, decl := range m.Tools {
		if err := h.table.RegisterRemote(decl.Name, decl.Description, decl.Schema, decl.DefaultApproval); err != nil {
			return inkerr.With(err, inkerr.FieldPlugin(m.Name))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins[m.Name] = &livePlugin{manifest: m, client: client, tool: tool}
	for _, decl := range m.Tools {
		h.owner[decl.Name] = m.Name
	}
	return nil
}

type execResult struct {
	payload string
	err     error
}

// ExecuteTool routes one tool call to the owning plugin. The rpc call
// itself cannot be interrupted; cancellation abandons the call and the
// plugin finishes or dies with the host.
func (h *Host) ExecuteTool(ctx context.Context, callID, toolName, argsJSON string) (string, error) {
	h.mu.Lock()
	pluginName, ok := h.owner[toolName]
	var lp *livePlugin
	if ok {
		lp = h.plugins[pluginName]
	}
	h.mu.Unlock()

	if lp == nil {
		return "", inkerr.New(inkerr.CodePluginNotFound,
			fmt.Sprintf("no plugin serves tool %q", toolName), inkerr.FieldTool(toolName))
	}

	ch := make(chan execResult, 1)
	go func() {
		payload, err := lp.tool.Execute(callID, toolName, argsJSON)
		ch <- execResult{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", inkerr.Wrap(res.err, inkerr.CodePluginCallFailure,
				fmt.Sprintf("tool %s via plugin %s", toolName, pluginName),
				inkerr.FieldTool(toolName), inkerr.FieldPlugin(pluginName),
				inkerr.FieldCallID(callID))
		}
		return res.payload, nil
	}
}

// Plugins lists running plugins sorted by name.
func (h *Host) Plugins() []PluginInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PluginInfo, 0, len(h.plugins))
	for _, lp := range h.plugins {
		info := PluginInfo{Name: lp.manifest.Name, Version: lp.manifest.Version}
		for _, decl := range lp.manifest.Tools {
			info.Tools = append(info.Tools, decl.Name)
		}
		sort.Strings(info.Tools)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close kills every plugin process.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, lp := range h.plugins {
		if lp.client != nil {
			lp.client.Kill()
		}
	}
	h.plugins = make(map[string]*livePlugin)
	h.owner = make(map[string]string)
	return nil
}
