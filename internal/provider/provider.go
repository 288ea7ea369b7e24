// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package provider

import (
	"context"
	"time"

	"github.com/inkwell-dev/inkwell/internal/store"
)

// Provider is the core interface for LLM backends.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Router routes chat requests to the appropriate provider based on model name.
type Router interface {
	Route(ctx context.Context, sessionID, modelName string) (Provider, string, error)
	RegisterProvider(name string, provider Provider) error
	Close() error
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Tools          []ToolDefinition
	SystemPrompt   string
	ContextSummary string // condensed history prepended to the system prompt
	Reasoning      *ReasoningConfig
	Options        ChatOptions
}

// ReasoningConfig asks the model to expose its reasoning stream.
type ReasoningConfig struct {
	Effort       string // "low", "medium", "high"
	BudgetTokens int
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
	Stream        bool
}

// Message represents a conversation message sent to a provider. Assistant
// messages that requested tools carry the calls so backends can replay
// them ahead of the matching tool results.
type Message struct {
	Role       store.MessageRole
	Content    string
	Parts      []ContentPart // optional multi-part body; Content used when empty
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// PartType discriminates ContentPart variants.
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image"
)

// ContentPart is one segment of a multi-part message body.
type ContentPart struct {
	Type     PartType
	Text     string
	MimeType string // image parts
	Data     []byte // raw image bytes
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type      EventType
	Text      string
	ToolCall  *ToolCall
	ArgsLen   int // EventTypeToolCallDelta running argument length
	Usage     *Usage
	Duration  time.Duration
	Error     string
	Retryable bool
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeReasoningStart EventType = "reasoning_start"
	EventTypeReasoningDelta EventType = "reasoning_delta"
	EventTypeReasoningEnd   EventType = "reasoning_end"
	EventTypeTextDelta      EventType = "text_delta"
	EventTypeToolCallStart  EventType = "tool_call_start"
	EventTypeToolCallDelta  EventType = "tool_call_delta"
	EventTypeToolCall       EventType = "tool_call"
	EventTypeUsage          EventType = "usage"
	EventTypeDone           EventType = "done"
	EventTypeError          EventType = "error"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// ModelInfo describes a model's capabilities.
type ModelInfo struct {
	ID           string
	Name         string
	Provider     string
	Capabilities ModelCapabilities
}

// ModelCapabilities declares what a model supports.
type ModelCapabilities struct {
	SupportsTools     bool
	SupportsVision    bool
	SupportsStreaming bool
	SupportsThinking  bool
	MaxContextTokens  int
	MaxOutputTokens   int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}
