// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/inkwell-dev/inkwell/internal/document"
	"github.com/inkwell-dev/inkwell/internal/match"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Built-in tool names.
const (
	ToolReadDocument   = "read_document"
	ToolUpdateTitle    = "update_title"
	ToolInsertContent  = "insert_content"
	ToolReplaceContent = "replace_content"
	ToolSetContent     = "set_content"
)

// ToolKind separates tools that only read the draft from tools that
// propose edits to it.
type ToolKind string

const (
	ToolKindRead     ToolKind = "read"
	ToolKindMutating ToolKind = "mutating"
)

// toolOutcome is what a local handler produces: a read payload or an
// edit proposal, never both.
type toolOutcome struct {
	payload  string
	proposal *PendingChange
}

// toolHandler executes one local tool against the round's working copy.
// Handlers never mutate the draft; the dispatcher owns that.
type toolHandler func(ctx context.Context, args string, draft *document.Context, opts match.Options) (toolOutcome, error)

// ToolSpec is one entry in the closed tool table.
type ToolSpec struct {
	Name        string
	Kind        ToolKind
	Location    store.ExecutionLocation
	Description string
	InputSchema map[string]any

	// RequiresApproval is the table default; the approval policy has the
	// final say per call.
	RequiresApproval bool

	run toolHandler
}

// ToolTable maps tool names to their specs. The five built-in editing
// tools are always present; remote tools join from plugin manifests.
// Adding a tool means adding a table entry.
type ToolTable struct {
	mu    sync.RWMutex
	specs map[string]*ToolSpec
}

// NewToolTable returns a table holding the built-in editing tools.
func NewToolTable() *ToolTable {
	t := &ToolTable{specs: make(map[string]*ToolSpec)}
	for _, spec := range builtinSpecs() {
		t.specs[spec.Name] = spec
	}
	return t
}

// Lookup returns a copy of the spec for name.
func (t *ToolTable) Lookup(name string) (ToolSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	spec, ok := t.specs[name]
	if !ok {
		return ToolSpec{}, false
	}
	return *spec, true
}

// RegisterRemote adds a plugin-provided tool to the table. Remote tools
// are reads from the draft's point of view; whether their output is
// gated behind approval comes from the plugin manifest.
func (t *ToolTable) RegisterRemote(name, description string, schema map[string]any, requiresApproval bool) error {
	if name == "" {
		return inkerr.New(inkerr.CodeAgentToolInvalidArgs, "remote tool name is empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.specs[name]; exists {
		return inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			"tool already registered: "+name, inkerr.FieldTool(name))
	}
	t.specs[name] = &ToolSpec{
		Name:             name,
		Kind:             ToolKindRead,
		Location:         store.ExecutionRemote,
		Description:      description,
		InputSchema:      schema,
		RequiresApproval: requiresApproval,
	}
	return nil
}

// Names returns all registered tool names in sorted order.
func (t *ToolTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.specs))
	for name := range t.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool definitions sent to providers, sorted by
// name so requests are deterministic.
func (t *ToolTable) Definitions() []provider.ToolDefinition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(t.specs))
	for _, spec := range t.specs {
		defs = append(defs, provider.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// --- built-in specs ---

func builtinSpecs() []*ToolSpec {
	return []*ToolSpec{
		{
			Name:        ToolReadDocument,
			Kind:        ToolKindRead,
			Location:    store.ExecutionLocal,
			Description: "Read the current draft content with line numbers.",
			InputSchema: objectSchema(nil, nil),
			run:         runReadDocument,
		},
		{
			Name:        ToolUpdateTitle,
			Kind:        ToolKindMutating,
			Location:    store.ExecutionLocal,
			Description: "Set the draft title.",
			InputSchema: objectSchema(map[string]any{
				"title": map[string]any{"type": "string", "description": "The new draft title."},
			}, []string{"title"}),
			RequiresApproval: true,
			run:              runUpdateTitle,
		},
		{
			Name:        ToolInsertContent,
			Kind:        ToolKindMutating,
			Location:    store.ExecutionLocal,
			Description: "Insert text at the start or end of the draft.",
			InputSchema: objectSchema(map[string]any{
				"content": map[string]any{"type": "string", "description": "The text to insert."},
				"position": map[string]any{
					"type":        "string",
					"enum":        []string{"start", "end"},
					"description": "Where to insert. Defaults to end.",
				},
			}, []string{"content"}),
			RequiresApproval: true,
			run:              runInsertContent,
		},
		{
			Name:     ToolReplaceContent,
			Kind:     ToolKindMutating,
			Location: store.ExecutionLocal,
			Description: "Replace text in the draft. The search text must match the " +
				"draft exactly; copy it from read_document output, including whitespace.",
			InputSchema: objectSchema(map[string]any{
				"search":  map[string]any{"type": "string", "description": "The exact text to find."},
				"replace": map[string]any{"type": "string", "description": "The replacement text. May be empty to delete."},
				"replace_all": map[string]any{
					"type":        "boolean",
					"description": "Replace every occurrence instead of requiring a unique one.",
				},
				"occurrence": map[string]any{
					"type":        "integer",
					"description": "Pick the Nth occurrence (1-based) when the search text appears more than once.",
				},
				"start_line": map[string]any{
					"type":        "integer",
					"description": "Restrict the search to lines at or after this 1-based line.",
				},
				"end_line": map[string]any{
					"type":        "integer",
					"description": "Restrict the search to lines at or before this 1-based line.",
				},
			}, []string{"search", "replace"}),
			RequiresApproval: true,
			run:              runReplaceContent,
		},
		{
			Name:        ToolSetContent,
			Kind:        ToolKindMutating,
			Location:    store.ExecutionLocal,
			Description: "Replace the entire draft content.",
			InputSchema: objectSchema(map[string]any{
				"content": map[string]any{"type": "string", "description": "The full new draft content."},
			}, []string{"content"}),
			RequiresApproval: true,
			run:              runSetContent,
		},
	}
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- handlers ---

func runReadDocument(_ context.Context, _ string, draft *document.Context, _ match.Options) (toolOutcome, error) {
	numbered := draft.NumberedLines()
	if numbered == "" {
		return toolOutcome{payload: "The draft is empty."}, nil
	}
	return toolOutcome{payload: numbered}, nil
}

func runUpdateTitle(_ context.Context, args string, draft *document.Context, _ match.Options) (toolOutcome, error) {
	var in struct {
		Title string `json:"title"`
	}
	if err := parseArgs(ToolUpdateTitle, args, &in); err != nil {
		return toolOutcome{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			"title must not be empty", inkerr.FieldTool(ToolUpdateTitle))
	}

	return toolOutcome{proposal: &PendingChange{
		Target:      ChangeTargetTitle,
		Op:          ChangeOpUpdate,
		Description: fmt.Sprintf("set the title to %q", in.Title),
		OldValue:    draft.Title,
		NewValue:    in.Title,
		SkipDiff:    true,
	}}, nil
}

func runInsertContent(_ context.Context, args string, draft *document.Context, _ match.Options) (toolOutcome, error) {
	var in struct {
		Content  string `json:"content"`
		Position string `json:"position"`
	}
	if err := parseArgs(ToolInsertContent, args, &in); err != nil {
		return toolOutcome{}, err
	}
	if in.Content == "" {
		return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			"content must not be empty", inkerr.FieldTool(ToolInsertContent))
	}
	if in.Position == "" {
		in.Position = "end"
	}

	var next string
	switch in.Position {
	case "start":
		next = in.Content + draft.Content
	case "end":
		next = draft.Content + in.Content
	default:
		return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			fmt.Sprintf("position must be %q or %q, got %q", "start", "end", in.Position),
			inkerr.FieldTool(ToolInsertContent))
	}

	return toolOutcome{proposal: &PendingChange{
		Target:      ChangeTargetContent,
		Op:          ChangeOpInsert,
		Description: fmt.Sprintf("insert %d characters at the %s", len(in.Content), in.Position),
		OldValue:    draft.Content,
		NewValue:    next,
	}}, nil
}

func runReplaceContent(_ context.Context, args string, draft *document.Context, opts match.Options) (toolOutcome, error) {
	var in struct {
		Search     string `json:"search"`
		Replace    string `json:"replace"`
		ReplaceAll bool   `json:"replace_all"`
		Occurrence int    `json:"occurrence"`
		StartLine  int    `json:"start_line"`
		EndLine    int    `json:"end_line"`
	}
	if err := parseArgs(ToolReplaceContent, args, &in); err != nil {
		return toolOutcome{}, err
	}
	if in.Search == "" {
		return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			"search must not be empty", inkerr.FieldTool(ToolReplaceContent))
	}

	opts.ReplaceAll = in.ReplaceAll
	opts.Occurrence = in.Occurrence
	opts.StartLine = in.StartLine
	opts.EndLine = in.EndLine

	next, res, err := match.Replace(draft.Content, in.Search, in.Replace, opts)
	if err != nil {
		return toolOutcome{}, inkerr.Wrap(err, inkerr.CodeAgentToolFailure,
			res.FailureMessage(), inkerr.FieldTool(ToolReplaceContent))
	}

	op := ChangeOpReplace
	replaced := 1
	if in.ReplaceAll {
		op = ChangeOpReplaceAll
		if in.Occurrence == 0 && res.Strategy != match.StrategyFuzzy {
			replaced = res.Count
		}
	}
	desc := "replace 1 occurrence"
	if replaced != 1 {
		desc = fmt.Sprintf("replace %d occurrences", replaced)
	}

	return toolOutcome{proposal: &PendingChange{
		Target:      ChangeTargetContent,
		Op:          op,
		Description: desc,
		OldValue:    draft.Content,
		NewValue:    next,
	}}, nil
}

func runSetContent(_ context.Context, args string, draft *document.Context, _ match.Options) (toolOutcome, error) {
	var in struct {
		Content *string `json:"content"`
	}
	if err := parseArgs(ToolSetContent, args, &in); err != nil {
		return toolOutcome{}, err
	}
	if in.Content == nil {
		return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolInvalidArgs,
			"content is required", inkerr.FieldTool(ToolSetContent))
	}

	return toolOutcome{proposal: &PendingChange{
		Target:      ChangeTargetContent,
		Op:          ChangeOpReplaceAll,
		Description: fmt.Sprintf("replace the entire content (%d characters)", len(*in.Content)),
		OldValue:    draft.Content,
		NewValue:    *in.Content,
	}}, nil
}

// parseArgs decodes a tool's JSON arguments. Providers occasionally send
// an empty string for zero-argument calls; treat that as an empty object.
func parseArgs(name, raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return inkerr.Wrap(err, inkerr.CodeAgentToolInvalidArgs,
			"invalid arguments for "+name, inkerr.FieldTool(name))
	}
	return nil
}
