// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package store

import (
	"time"
)

// --- Session types ---

// SessionStatus represents the lifecycle state of an editing session.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusArchived SessionStatus = "archived"
)

// Session represents one agent conversation bound to a draft.
type Session struct {
	ID      string
	DraftID string
	// Summary carries the condensed context sent to the backend in place
	// of evicted history.
	Summary       string
	ModelOverride string
	Status        SessionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// --- Message types ---

// MessageRole identifies the sender of a message in a session.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// MessageStatus tracks an assistant message through its streaming
// lifecycle.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusCompleted MessageStatus = "completed"
	MessageStatusFailed    MessageStatus = "failed"
)

// CanTransition reports whether a message may move to the target status.
// Statuses only move forward; completed and failed are terminal.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	switch s {
	case MessageStatusPending:
		return to == MessageStatusStreaming || to == MessageStatusCompleted || to == MessageStatusFailed
	case MessageStatusStreaming:
		return to == MessageStatusCompleted || to == MessageStatusFailed
	default:
		return false
	}
}

// ToolCallStatus tracks one tool invocation inside an assistant message.
type ToolCallStatus string

const (
	ToolCallStatusPending              ToolCallStatus = "pending"
	ToolCallStatusRunning              ToolCallStatus = "running"
	ToolCallStatusAwaitingConfirmation ToolCallStatus = "awaiting_confirmation"
	ToolCallStatusCompleted            ToolCallStatus = "completed"
	ToolCallStatusFailed               ToolCallStatus = "failed"
)

// CanTransition reports whether a tool call may move to the target
// status. Calls that execute directly go pending, running, then a
// terminal state; calls held for approval go pending,
// awaiting_confirmation, then a terminal state.
func (s ToolCallStatus) CanTransition(to ToolCallStatus) bool {
	switch s {
	case ToolCallStatusPending:
		return to == ToolCallStatusRunning || to == ToolCallStatusAwaitingConfirmation || to == ToolCallStatusFailed
	case ToolCallStatusRunning:
		return to == ToolCallStatusCompleted || to == ToolCallStatusFailed
	case ToolCallStatusAwaitingConfirmation:
		return to == ToolCallStatusCompleted || to == ToolCallStatusFailed
	default:
		return false
	}
}

// ExecutionLocation says where a tool call executes.
type ExecutionLocation string

const (
	ExecutionLocal  ExecutionLocation = "local"
	ExecutionRemote ExecutionLocation = "remote"
)

// Usage records token accounting for one assistant turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ToolCallRecord is the persisted state of one tool invocation.
type ToolCallRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments string            `json:"arguments"`
	Status    ToolCallStatus    `json:"status"`
	Location  ExecutionLocation `json:"location"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Message represents a single entry in a session conversation. Assistant
// messages carry reasoning, tool calls, and usage; tool messages carry
// the result for one call via ToolCallID.
type Message struct {
	ID         string
	SessionID  string
	Role       MessageRole
	Content    string
	Reasoning  string
	Status     MessageStatus
	ToolCalls  []ToolCallRecord
	ToolCallID string
	ToolName   string
	Usage      *Usage
	CreatedAt  time.Time
}

// --- Draft types ---

// Draft is the document a session edits: a title plus body text.
type Draft struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
