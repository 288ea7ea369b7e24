// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent

import (
	"context"
	"fmt"
	"slices"

	"github.com/inkwell-dev/inkwell/internal/diff"
	"github.com/inkwell-dev/inkwell/internal/document"
	"github.com/inkwell-dev/inkwell/internal/match"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// ChangeTarget says which part of the draft a change touches.
type ChangeTarget string

const (
	ChangeTargetTitle   ChangeTarget = "title"
	ChangeTargetContent ChangeTarget = "content"
)

// ChangeOp classifies how a change was produced.
type ChangeOp string

const (
	ChangeOpUpdate     ChangeOp = "update"
	ChangeOpInsert     ChangeOp = "insert"
	ChangeOpReplace    ChangeOp = "replace"
	ChangeOpReplaceAll ChangeOp = "replace_all"
)

// PendingChange is one proposed edit (or gated read result) held for the
// user's decision. Its ID is the originating tool call's ID. Old and new
// values stay server-side; clients see the description, the diff, and
// for gated reads the payload. ToolName and Arguments keep the call
// replayable in case the draft moves past OldValue before the change
// settles.
type PendingChange struct {
	ID          string       `json:"id"`
	Target      ChangeTarget `json:"target,omitempty"`
	Op          ChangeOp     `json:"op,omitempty"`
	Description string       `json:"description"`
	IsReadOnly  bool         `json:"isReadOnly,omitempty"`
	ReadPayload string       `json:"readPayload,omitempty"`
	Diff        *diff.Result `json:"diff,omitempty"`

	OldValue  string `json:"-"`
	NewValue  string `json:"-"`
	ToolName  string `json:"-"`
	Arguments string `json:"-"`
	SkipDiff  bool   `json:"-"`
}

// AppliedText is the tool result the model sees once the change applies.
func (c *PendingChange) AppliedText() string {
	return "Applied: " + c.Description
}

// ApprovalPolicy decides whether a tool call is held for the user.
type ApprovalPolicy interface {
	RequiresApproval(spec ToolSpec) bool
}

type policyFunc func(ToolSpec) bool

func (f policyFunc) RequiresApproval(spec ToolSpec) bool { return f(spec) }

// DefaultPolicy holds every mutating tool for approval and follows the
// table default for read tools.
func DefaultPolicy() ApprovalPolicy {
	return policyFunc(func(spec ToolSpec) bool {
		if spec.Kind == ToolKindMutating {
			return true
		}
		return spec.RequiresApproval
	})
}

// NewPolicy refines DefaultPolicy with configured tool lists. Tools in
// autoApprove run without confirmation; tools in requireApproval are
// always held. requireApproval wins when a name appears in both.
func NewPolicy(autoApprove, requireApproval []string) ApprovalPolicy {
	base := DefaultPolicy()
	return policyFunc(func(spec ToolSpec) bool {
		if slices.Contains(requireApproval, spec.Name) {
			return true
		}
		if slices.Contains(autoApprove, spec.Name) {
			return false
		}
		return base.RequiresApproval(spec)
	})
}

// RemoteExecutor runs a tool that lives outside the gateway process.
// A non-nil error marks the call failed; the error text goes back to the
// model as the tool result.
type RemoteExecutor interface {
	ExecuteTool(ctx context.Context, callID, toolName, arguments string) (string, error)
}

// DispatcherConfig holds dependencies for a Dispatcher.
type DispatcherConfig struct {
	Table  *ToolTable
	Policy ApprovalPolicy // nil selects DefaultPolicy
	Remote RemoteExecutor // nil disables remote tools

	DiffOptions    diff.Options
	FuzzyThreshold float64
	MaxCandidates  int
}

// Dispatcher executes the tool calls of one round strictly in order
// against a working copy of the draft.
type Dispatcher struct {
	table     *ToolTable
	policy    ApprovalPolicy
	remote    RemoteExecutor
	diffOpts  diff.Options
	matchOpts match.Options
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Table == nil {
		return nil, inkerr.New(inkerr.CodeAgentLoopInvalidInput, "Table is required")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Dispatcher{
		table:     cfg.Table,
		policy:    policy,
		remote:    cfg.Remote,
		diffOpts:  cfg.DiffOptions,
		matchOpts: match.Options{FuzzyThreshold: cfg.FuzzyThreshold, MaxCandidates: cfg.MaxCandidates},
	}, nil
}

// ExecuteAll runs the round's calls in their original order. The working
// copy advances after every produced change, approved or not, so later
// calls see earlier effects; only approved changes reach the sink, and
// applied advances with them to track the state the sink has seen.
// Returned records are in call order; changes hold the calls awaiting
// confirmation, also in call order. A context error stops execution and
// leaves the remaining calls pending.
func (d *Dispatcher) ExecuteAll(
	ctx context.Context,
	calls []store.ToolCallRecord,
	draft, applied *document.Context,
	sink document.Sink,
	observe func(store.ToolCallRecord),
) ([]store.ToolCallRecord, []*PendingChange, error) {
	records := make([]store.ToolCallRecord, len(calls))
	copy(records, calls)

	var changes []*PendingChange
	for i := range records {
		if err := ctx.Err(); err != nil {
			return records, changes, err
		}
		d.executeOne(ctx, &records[i], draft, applied, sink, &changes)
		if observe != nil {
			observe(records[i])
		}
	}
	return records, changes, nil
}

func (d *Dispatcher) executeOne(
	ctx context.Context,
	rec *store.ToolCallRecord,
	draft, applied *document.Context,
	sink document.Sink,
	changes *[]*PendingChange,
) {
	spec, ok := d.table.Lookup(rec.Name)
	if !ok {
		rec.Status = store.ToolCallStatusFailed
		rec.Error = fmt.Sprintf("unknown tool %q", rec.Name)
		return
	}
	rec.Location = spec.Location
	needsApproval := d.policy.RequiresApproval(spec)

	// Calls that execute directly pass through running; calls held for
	// approval go straight to awaiting_confirmation once their outcome
	// is computed.
	if !needsApproval {
		rec.Status = store.ToolCallStatusRunning
	}

	outcome, err := d.run(ctx, spec, rec, draft)
	if err != nil {
		rec.Status = store.ToolCallStatusFailed
		rec.Error = err.Error()
		return
	}

	if outcome.proposal == nil {
		if needsApproval {
			rec.Status = store.ToolCallStatusAwaitingConfirmation
			*changes = append(*changes, &PendingChange{
				ID:          rec.ID,
				Description: "share the result of " + rec.Name,
				IsReadOnly:  true,
				ReadPayload: outcome.payload,
				SkipDiff:    true,
			})
			return
		}
		rec.Status = store.ToolCallStatusCompleted
		rec.Result = outcome.payload
		return
	}

	change := outcome.proposal
	change.ID = rec.ID
	change.ToolName = rec.Name
	change.Arguments = rec.Arguments
	if !change.SkipDiff && change.Target == ChangeTargetContent {
		dr := diff.Compute(change.OldValue, change.NewValue, d.diffOpts)
		change.Diff = &dr
	}

	// The working copy always advances so the rest of the round edits
	// against the proposed state.
	applyToDraft(draft, change)

	if needsApproval {
		rec.Status = store.ToolCallStatusAwaitingConfirmation
		*changes = append(*changes, change)
		return
	}

	if err := d.applyChange(ctx, sink, applied, change); err != nil {
		revertDraft(draft, change)
		rec.Status = store.ToolCallStatusFailed
		rec.Error = err.Error()
		return
	}
	rec.Status = store.ToolCallStatusCompleted
	rec.Result = change.AppliedText()
}

func (d *Dispatcher) run(ctx context.Context, spec ToolSpec, rec *store.ToolCallRecord, draft *document.Context) (toolOutcome, error) {
	if spec.Location == store.ExecutionRemote {
		if d.remote == nil {
			return toolOutcome{}, inkerr.New(inkerr.CodeAgentToolFailure,
				"no remote tool executor configured", inkerr.FieldTool(rec.Name))
		}
		payload, err := d.remote.ExecuteTool(ctx, rec.ID, rec.Name, rec.Arguments)
		if err != nil {
			return toolOutcome{}, err
		}
		return toolOutcome{payload: payload}, nil
	}
	return spec.run(ctx, rec.Arguments, draft, d.matchOpts)
}

func applyToDraft(draft *document.Context, change *PendingChange) {
	switch change.Target {
	case ChangeTargetTitle:
		draft.Title = change.NewValue
	case ChangeTargetContent:
		draft.Content = change.NewValue
	}
}

func revertDraft(draft *document.Context, change *PendingChange) {
	switch change.Target {
	case ChangeTargetTitle:
		draft.Title = change.OldValue
	case ChangeTargetContent:
		draft.Content = change.OldValue
	}
}

// applyChange writes a change through the sink and advances applied, the
// last state the sink saw. A change whose base no longer matches applied
// (an earlier proposal from the round was rejected, or accepts arrived
// out of order) is recomputed first so only its own edit lands.
func (d *Dispatcher) applyChange(ctx context.Context, sink document.Sink, applied *document.Context, change *PendingChange) error {
	if sink == nil {
		return inkerr.New(inkerr.CodeDocumentSinkFailure, "no draft sink configured")
	}
	next, err := d.recompute(ctx, change, applied)
	if err != nil {
		return err
	}
	switch change.Target {
	case ChangeTargetTitle:
		if err := sink.SetTitle(ctx, next); err != nil {
			return err
		}
		applied.Title = next
	case ChangeTargetContent:
		if err := sink.SetContent(ctx, next); err != nil {
			return err
		}
		applied.Content = next
	default:
		return inkerr.New(inkerr.CodeApprovalApplyFailure,
			fmt.Sprintf("change %s has no target", change.ID))
	}
	return nil
}

// recompute picks the value applyChange writes. While applied still
// matches the proposal's base the precomputed result stands; otherwise
// the originating tool runs again against applied, so the change carries
// only its own edit and never the leftovers of proposals that were
// turned down.
func (d *Dispatcher) recompute(ctx context.Context, change *PendingChange, applied *document.Context) (string, error) {
	base := applied.Content
	if change.Target == ChangeTargetTitle {
		base = applied.Title
	}
	if base == change.OldValue {
		return change.NewValue, nil
	}

	spec, ok := d.table.Lookup(change.ToolName)
	if !ok || spec.run == nil {
		return "", inkerr.New(inkerr.CodeApprovalApplyFailure,
			fmt.Sprintf("change %s cannot be replayed against the current draft", change.ID))
	}
	outcome, err := spec.run(ctx, change.Arguments, applied, d.matchOpts)
	if err != nil {
		return "", err
	}
	if outcome.proposal == nil {
		return "", inkerr.New(inkerr.CodeApprovalApplyFailure,
			fmt.Sprintf("change %s produced no edit on replay", change.ID))
	}
	return outcome.proposal.NewValue, nil
}
