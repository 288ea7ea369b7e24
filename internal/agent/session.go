// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent

import (
	"context"
	"sync"

	"github.com/inkwell-dev/inkwell/internal/document"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
)

// Phase is where a session's round machinery currently stands.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseStreaming        Phase = "streaming"
	PhaseExecutingTools   Phase = "executing_tools"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseResuming         Phase = "resuming"
)

// PausedRound snapshots a round suspended on approvals so the engine can
// rebuild the continuation once every change is resolved. At most one
// exists per session.
type PausedRound struct {
	History   []provider.Message
	LoopCount int
	Text      string
	Reasoning string
	Calls     []store.ToolCallRecord
	MessageID string
}

// queuedInput is a user message that arrived while a round was in
// flight. It dispatches once the session returns to Idle.
type queuedInput struct {
	content string
	ch      chan Event
}

// sessionRuntime is the per-session loop state. All fields are guarded
// by mu; the round goroutine and the HTTP-facing engine methods both
// touch it.
type sessionRuntime struct {
	mu sync.Mutex

	// resolveMu serializes approval resolutions so each accept replays
	// against the state the previous one left behind.
	resolveMu sync.Mutex

	sessionID string
	draftID   string

	phase   Phase
	queue   []queuedInput
	pending map[string]*PendingChange
	order   []string // pending change IDs in call order
	paused  *PausedRound
	draft   *document.Context // working copy, advances with every proposal
	applied *document.Context // what the sink last saw, advances as changes apply
	cancel  context.CancelFunc
	sink    document.Sink
	ch      chan Event
}

func newSessionRuntime(sessionID, draftID string) *sessionRuntime {
	return &sessionRuntime{
		sessionID: sessionID,
		draftID:   draftID,
		phase:     PhaseIdle,
		pending:   make(map[string]*PendingChange),
	}
}

// runtime returns the session's runtime, creating it on first use.
func (e *Engine) runtime(sessionID, draftID string) *sessionRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt, ok := e.runtimes[sessionID]
	if !ok {
		rt = newSessionRuntime(sessionID, draftID)
		e.runtimes[sessionID] = rt
	}
	return rt
}

// lookupRuntime returns the session's runtime if one exists.
func (e *Engine) lookupRuntime(sessionID string) *sessionRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtimes[sessionID]
}

// Phase reports the session's current phase. Sessions with no runtime
// yet are Idle.
func (e *Engine) Phase(sessionID string) Phase {
	rt := e.lookupRuntime(sessionID)
	if rt == nil {
		return PhaseIdle
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.phase
}

// PendingChanges returns the session's unresolved changes in call order.
func (e *Engine) PendingChanges(sessionID string) []*PendingChange {
	rt := e.lookupRuntime(sessionID)
	if rt == nil {
		return nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make([]*PendingChange, 0, len(rt.order))
	for _, id := range rt.order {
		if change, ok := rt.pending[id]; ok {
			out = append(out, change)
		}
	}
	return out
}

func (rt *sessionRuntime) setPhase(p Phase) {
	rt.mu.Lock()
	rt.phase = p
	rt.mu.Unlock()
}

// emit delivers an event to the current round channel, if any. Sends
// block once the buffer fills; callers must not hold rt.mu.
func (rt *sessionRuntime) emit(ev Event) {
	rt.mu.Lock()
	ch := rt.ch
	rt.mu.Unlock()
	if ch != nil {
		ch <- ev
	}
}
