// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

func TestToolTableBuiltins(t *testing.T) {
	table := agent.NewToolTable()

	assert.Equal(t, []string{
		agent.ToolInsertContent,
		agent.ToolReadDocument,
		agent.ToolReplaceContent,
		agent.ToolSetContent,
		agent.ToolUpdateTitle,
	}, table.Names())

	tests := []struct {
		name         string
		wantKind     agent.ToolKind
		wantApproval bool
	}{
		{agent.ToolReadDocument, agent.ToolKindRead, false},
		{agent.ToolUpdateTitle, agent.ToolKindMutating, true},
		{agent.ToolInsertContent, agent.ToolKindMutating, true},
		{agent.ToolReplaceContent, agent.ToolKindMutating, true},
		{agent.ToolSetContent, agent.ToolKindMutating, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := table.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.name, spec.Name)
			assert.Equal(t, tt.wantKind, spec.Kind)
			assert.Equal(t, store.ExecutionLocal, spec.Location)
			assert.Equal(t, tt.wantApproval, spec.RequiresApproval)
			assert.NotEmpty(t, spec.Description)
		})
	}

	_, ok := table.Lookup("no_such_tool")
	assert.False(t, ok)
}

func TestToolTableDefinitions(t *testing.T) {
	table := agent.NewToolTable()
	defs := table.Definitions()
	require.Len(t, defs, 5)

	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Name, defs[i].Name, "definitions must be sorted by name")
	}

	byName := make(map[string]map[string]any, len(defs))
	for _, def := range defs {
		require.NotNil(t, def.InputSchema, "%s needs a schema", def.Name)
		assert.Equal(t, "object", def.InputSchema["type"], "%s schema type", def.Name)
		byName[def.Name] = def.InputSchema
	}

	required, _ := byName[agent.ToolReplaceContent]["required"].([]string)
	assert.ElementsMatch(t, []string{"search", "replace"}, required)

	titleRequired, _ := byName[agent.ToolUpdateTitle]["required"].([]string)
	assert.Equal(t, []string{"title"}, titleRequired)
}

func TestToolTableRegisterRemote(t *testing.T) {
	table := agent.NewToolTable()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{"type": "string"},
		},
	}

	require.NoError(t, table.RegisterRemote("publish_draft", "publish the draft", schema, true))

	spec, ok := table.Lookup("publish_draft")
	require.True(t, ok)
	assert.Equal(t, agent.ToolKindRead, spec.Kind)
	assert.Equal(t, store.ExecutionRemote, spec.Location)
	assert.True(t, spec.RequiresApproval)
	assert.Equal(t, "publish the draft", spec.Description)

	assert.Contains(t, table.Names(), "publish_draft")
	assert.Len(t, table.Definitions(), 6)
}

func TestToolTableRegisterRemoteRejectsBadNames(t *testing.T) {
	table := agent.NewToolTable()

	err := table.RegisterRemote("", "anonymous", nil, false)
	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeAgentToolInvalidArgs))

	err = table.RegisterRemote(agent.ToolReadDocument, "impostor", nil, false)
	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeAgentToolInvalidArgs))
	assert.Contains(t, err.Error(), "already registered")

	require.NoError(t, table.RegisterRemote("fetch_notes", "fetch", nil, false))
	err = table.RegisterRemote("fetch_notes", "fetch again", nil, false)
	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeAgentToolInvalidArgs))
}
