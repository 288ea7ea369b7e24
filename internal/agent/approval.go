// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent

import (
	"context"

	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// RejectedResultText is what the model sees for a change the user turned
// down. Phrased to stop the obvious failure mode of retrying the same
// edit verbatim.
const RejectedResultText = "The user rejected this change. Leave the draft as it is and do not retry the same edit; ask the user how they would like to proceed."

// Accept applies a pending change and feeds its outcome back into the
// paused round. When it was the last pending change the round resumes.
func (e *Engine) Accept(ctx context.Context, sessionID, changeID string) error {
	return e.resolveChange(ctx, sessionID, changeID, true)
}

// Reject discards a pending change. The tool call still completes, with
// a result telling the model not to retry. When it was the last pending
// change the round resumes.
func (e *Engine) Reject(ctx context.Context, sessionID, changeID string) error {
	return e.resolveChange(ctx, sessionID, changeID, false)
}

func (e *Engine) resolveChange(ctx context.Context, sessionID, changeID string, accept bool) error {
	rt := e.lookupRuntime(sessionID)
	if rt == nil {
		return inkerr.New(inkerr.CodeApprovalChangeNotFound,
			"no pending change "+changeID, inkerr.FieldSessionID(sessionID))
	}

	rt.mu.Lock()
	change, ok := rt.pending[changeID]
	if !ok {
		rt.mu.Unlock()
		return inkerr.New(inkerr.CodeApprovalChangeNotFound,
			"no pending change "+changeID, inkerr.FieldSessionID(sessionID))
	}
	delete(rt.pending, changeID)
	for i, id := range rt.order {
		if id == changeID {
			rt.order = append(rt.order[:i], rt.order[i+1:]...)
			break
		}
	}
	sink, applied := rt.sink, rt.applied
	rt.mu.Unlock()

	// One resolution settles at a time; each replay must see the state
	// the previous one produced.
	rt.resolveMu.Lock()

	outcome := OutcomeRejected
	rec := store.ToolCallRecord{ID: change.ID, Status: store.ToolCallStatusCompleted}
	switch {
	case !accept:
		rec.Result = RejectedResultText
	case change.IsReadOnly:
		outcome = OutcomeAccepted
		rec.Result = change.ReadPayload
	default:
		outcome = OutcomeAccepted
		if err := e.disp.applyChange(ctx, sink, applied, change); err != nil {
			rec.Status = store.ToolCallStatusFailed
			rec.Error = err.Error()
		} else {
			rec.Result = change.AppliedText()
		}
	}

	var (
		updated  *store.ToolCallRecord
		resume   *PausedRound
		rctx     context.Context
		pausedID string
	)
	rt.mu.Lock()
	if rt.paused != nil {
		pausedID = rt.paused.MessageID
		for i := range rt.paused.Calls {
			if rt.paused.Calls[i].ID != change.ID {
				continue
			}
			rt.paused.Calls[i].Status = rec.Status
			rt.paused.Calls[i].Result = rec.Result
			rt.paused.Calls[i].Error = rec.Error
			recCopy := rt.paused.Calls[i]
			updated = &recCopy
			break
		}
		if len(rt.pending) == 0 && rt.phase == PhaseAwaitingApproval {
			resume = rt.paused
			rt.paused = nil
			rt.phase = PhaseResuming
			var cancel context.CancelFunc
			rctx, cancel = context.WithCancel(context.Background())
			rt.cancel = cancel
			// The resumed round continues from the settled draft; rejected
			// proposals leave no trace in the working copy.
			if rt.draft != nil && rt.applied != nil {
				rt.draft.Title = rt.applied.Title
				rt.draft.Content = rt.applied.Content
			}
		}
	}
	rt.mu.Unlock()
	rt.resolveMu.Unlock()

	// Intermediate resolutions persist the reworked call record right
	// away; the resume path rewrites the whole message anyway.
	if resume == nil && updated != nil && pausedID != "" {
		e.completePausedCall(ctx, pausedID, *updated)
	}

	rt.emit(Event{Type: EventChangeResolved, Change: change, Outcome: outcome})
	if updated != nil {
		rt.emit(Event{Type: EventToolCallUpdate, Call: updated})
	}

	if resume != nil {
		go e.resumeRound(rctx, rt, resume)
	}
	return nil
}

// completePausedCall rewrites one call record on the paused assistant
// message so a restart sees resolved outcomes, not stale awaiting ones.
func (e *Engine) completePausedCall(ctx context.Context, messageID string, rec store.ToolCallRecord) {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		e.log.Warn("loading paused message failed", "message_id", messageID, "error", err)
		return
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == rec.ID {
			msg.ToolCalls[i] = rec
			break
		}
	}
	e.persistUpdate(ctx, msg)
}

// resumeRound continues a paused round after its last approval resolved:
// the partial assistant message completes, every call's result message is
// appended in original order, and the loop picks up one level deeper.
func (e *Engine) resumeRound(ctx context.Context, rt *sessionRuntime, paused *PausedRound) {
	session, err := e.store.GetSession(ctx, rt.sessionID)
	if err != nil {
		rt.emit(Event{Type: EventError, Error: "loading session: " + err.Error()})
		e.finishRound(rt)
		return
	}

	e.completePausedMessage(ctx, paused)
	e.persistCallResults(ctx, rt.sessionID, paused.Calls)

	history := continuationHistory(paused.History, paused.Text, paused.Calls)
	e.iterate(ctx, rt, session, history, paused.LoopCount+1)
}
