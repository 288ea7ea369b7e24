// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent

import (
	"github.com/inkwell-dev/inkwell/internal/store"
)

// EventType discriminates the events a round emits to its subscriber.
type EventType string

const (
	EventReasoningStart   EventType = "reasoning_start"
	EventReasoningDelta   EventType = "reasoning_delta"
	EventReasoningEnd     EventType = "reasoning_end"
	EventTextDelta        EventType = "text_delta"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallDelta    EventType = "tool_call_delta"
	EventToolCallUpdate   EventType = "tool_call_update"
	EventChangePending    EventType = "change_pending"
	EventChangeResolved   EventType = "change_resolved"
	EventAwaitingApproval EventType = "awaiting_approval"
	EventUsage            EventType = "usage"
	EventDone             EventType = "done"
	EventCancelled        EventType = "cancelled"
	EventError            EventType = "error"
)

// Outcome values carried on EventChangeResolved.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Event is one entry in a round's event stream. The channel carrying
// these stays open across an approval pause and is never closed; a
// Done, Cancelled, or Error event marks the end of the round.
type Event struct {
	Type      EventType             `json:"type"`
	Text      string                `json:"text,omitempty"`
	Call      *store.ToolCallRecord `json:"call,omitempty"`
	ArgsLen   int                   `json:"argsLen,omitempty"`
	Change    *PendingChange        `json:"change,omitempty"`
	Usage     *store.Usage          `json:"usage,omitempty"`
	MessageID string                `json:"messageId,omitempty"`
	Outcome   string                `json:"outcome,omitempty"`
	Error     string                `json:"error,omitempty"`
}
