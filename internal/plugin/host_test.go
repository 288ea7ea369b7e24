// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/plugin"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

type stubTool struct {
	mu      sync.Mutex
	calls   [][3]string
	payload string
	err     error
}

func (s *stubTool) Execute(callID, toolName, argsJSON string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, [3]string{callID, toolName, argsJSON})
	s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	return s.payload, nil
}

func (s *stubTool) lastCall(t *testing.T) [3]string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

type blockingTool struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTool() *blockingTool {
	return &blockingTool{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingTool) Execute(callID, toolName, argsJSON string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "late", nil
}

func newHost(t *testing.T) (*plugin.Host, *agent.ToolTable) {
	t.Helper()

	table := agent.NewToolTable()
	host, err := plugin.NewHost(plugin.HostConfig{Table: table})
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return host, table
}

func notesManifest() *plugin.Manifest {
	return &plugin.Manifest{
		Name:    "notes",
		Version: "1.0.0",
		Binary:  "notes-plugin",
		Tools: []plugin.ToolDecl{
			{
				Name:            "fetch_notes",
				Description:     "Fetch research notes by topic.",
				DefaultApproval: true,
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{"type": "string"},
					},
				},
			},
			{Name: "list_topics", Description: "List known note topics."},
		},
	}
}

func TestNewHostRequiresTable(t *testing.T) {
	_, err := plugin.NewHost(plugin.HostConfig{})

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginStartFailure))
}

func TestInstallRegistersDeclaredTools(t *testing.T) {
	host, table := newHost(t)

	require.NoError(t, host.Install(notesManifest(), &stubTool{payload: "ok"}))

	fetch, ok := table.Lookup("fetch_notes")
	require.True(t, ok)
	assert.Equal(t, agent.ToolKindRead, fetch.Kind)
	assert.Equal(t, store.ExecutionRemote, fetch.Location)
	assert.True(t, fetch.RequiresApproval)
	assert.Equal(t, "Fetch research notes by topic.", fetch.Description)
	assert.Equal(t, "object", fetch.InputSchema["type"])

	list, ok := table.Lookup("list_topics")
	require.True(t, ok)
	assert.False(t, list.RequiresApproval)

	infos := host.Plugins()
	require.Len(t, infos, 1)
	assert.Equal(t, "notes", infos[0].Name)
	assert.Equal(t, "1.0.0", infos[0].Version)
	assert.Equal(t, []string{"fetch_notes", "list_topics"}, infos[0].Tools)
}

func TestInstallRejectsBuiltinNameCollision(t *testing.T) {
	host, _ := newHost(t)

	m := notesManifest()
	m.Tools = []plugin.ToolDecl{{Name: "read_document", Description: "Shadow the builtin."}}

	err := host.Install(m, &stubTool{})

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeAgentToolInvalidArgs))
	assert.Contains(t, err.Error(), "already registered")
}

func TestExecuteToolRoutesToOwningPlugin(t *testing.T) {
	host, _ := newHost(t)

	notes := &stubTool{payload: "three notes on drafting"}
	require.NoError(t, host.Install(notesManifest(), notes))

	archive := &stubTool{payload: "archived"}
	require.NoError(t, host.Install(&plugin.Manifest{
		Name:    "archive",
		Version: "0.3.1",
		Binary:  "archive-plugin",
		Tools: []plugin.ToolDecl{
			{Name: "archive_draft", Description: "Snapshot the draft."},
		},
	}, archive))

	payload, err := host.ExecuteTool(context.Background(), "call-1", "fetch_notes", `{"topic":"openings"}`)
	require.NoError(t, err)
	assert.Equal(t, "three notes on drafting", payload)
	assert.Equal(t, [3]string{"call-1", "fetch_notes", `{"topic":"openings"}`}, notes.lastCall(t))

	payload, err = host.ExecuteTool(context.Background(), "call-2", "archive_draft", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "archived", payload)
	assert.Equal(t, [3]string{"call-2", "archive_draft", `{}`}, archive.lastCall(t))
}

func TestExecuteToolUnknownTool(t *testing.T) {
	host, _ := newHost(t)

	_, err := host.ExecuteTool(context.Background(), "call-1", "conjure_sources", `{}`)

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginNotFound))
	assert.Contains(t, err.Error(), `"conjure_sources"`)
}

func TestExecuteToolWrapsPluginFailure(t *testing.T) {
	host, _ := newHost(t)
	require.NoError(t, host.Install(notesManifest(), &stubTool{err: errors.New("notes service unreachable")}))

	_, err := host.ExecuteTool(context.Background(), "call-1", "fetch_notes", `{}`)

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginCallFailure))
	assert.Contains(t, err.Error(), "notes service unreachable")
	assert.Contains(t, err.Error(), "plugin notes")
}

func TestExecuteToolHonorsCancellation(t *testing.T) {
	host, _ := newHost(t)

	slow := newBlockingTool()
	defer close(slow.release)

	m := notesManifest()
	m.Tools = []plugin.ToolDecl{{Name: "slow_fetch", Description: "Takes a while."}}
	require.NoError(t, host.Install(m, slow))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-slow.started
		cancel()
	}()

	_, err := host.ExecuteTool(ctx, "call-1", "slow_fetch", `{}`)

	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseStopsRouting(t *testing.T) {
	host, _ := newHost(t)
	require.NoError(t, host.Install(notesManifest(), &stubTool{payload: "ok"}))

	require.NoError(t, host.Close())

	_, err := host.ExecuteTool(context.Background(), "call-1", "fetch_notes", `{}`)
	assert.True(t, inkerr.HasCode(err, inkerr.CodePluginNotFound))
	assert.Empty(t, host.Plugins())
}

func TestStartWithoutPluginDir(t *testing.T) {
	table := agent.NewToolTable()
	host, err := plugin.NewHost(plugin.HostConfig{Table: table})
	require.NoError(t, err)

	require.NoError(t, host.Start(context.Background()))
	assert.Empty(t, host.Plugins())
}

func TestStartWithMissingDir(t *testing.T) {
	table := agent.NewToolTable()
	host, err := plugin.NewHost(plugin.HostConfig{Dir: t.TempDir() + "/nope", Table: table})
	require.NoError(t, err)

	require.NoError(t, host.Start(context.Background()))
	assert.Empty(t, host.Plugins())
}
