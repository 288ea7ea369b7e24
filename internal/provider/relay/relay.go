// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package relay implements a provider that forwards chat requests to a
// backend speaking the line-oriented event:/data: stream protocol.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
	"github.com/inkwell-dev/inkwell/internal/stream"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Config holds relay provider configuration.
type Config struct {
	BaseURL string
	APIKey  string // optional bearer token
}

// Provider implements provider.Provider against a relay backend.
type Provider struct {
	client *http.Client
	config Config
	health *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

// New creates a relay provider. Returns an error if the base URL is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, inkerr.New(inkerr.CodeProviderRequestInvalid, "relay: missing base_url in config", inkerr.FieldProvider("relay"))
	}

	return &Provider{
		// No client timeout: responses stream for as long as the model talks.
		client: &http.Client{},
		config: cfg,
		health: provider.NewHealthTracker(provider.DefaultFailureThreshold, provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "relay" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	// The backend owns model selection; "default" defers to its configuration.
	return []provider.ModelInfo{
		{
			ID:       "default",
			Name:     "Relay Backend",
			Provider: "relay",
			Capabilities: provider.ModelCapabilities{
				SupportsTools:     true,
				SupportsStreaming: true,
				SupportsThinking:  true,
			},
		},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("relay: encoding request: %w", err)
	}

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, body, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  "relay",
		Message:   "ok",
	}, nil
}

func (p *Provider) Close() error { return nil }

// --- outbound wire types ---

type wireRequest struct {
	Model          string         `json:"model,omitempty"`
	Messages       []wireMessage  `json:"messages"`
	ToolsEnabled   bool           `json:"toolsEnabled"`
	ContextSummary string         `json:"contextSummary,omitempty"`
	Reasoning      *wireReasoning `json:"reasoning,omitempty"`
	Options        *wireOptions   `json:"options,omitempty"`
}

type wireMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []wirePart `json:"parts,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
}

type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64 image bytes
}

type wireReasoning struct {
	Effort       string `json:"effort,omitempty"`
	BudgetTokens int    `json:"budgetTokens,omitempty"`
}

type wireOptions struct {
	Temperature   *float32 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// buildRequest converts a provider.ChatRequest into the relay wire shape.
// The system prompt travels as a leading system-role history entry; tool
// availability is a flag because the backend owns the tool surface.
func buildRequest(req provider.ChatRequest) wireRequest {
	out := wireRequest{
		Model:          req.Model,
		ToolsEnabled:   len(req.Tools) > 0,
		ContextSummary: req.ContextSummary,
	}

	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, wireMessage{
			Role:    string(store.MessageRoleSystem),
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, wireMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Parts:      convertParts(msg.Parts),
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
		})
	}

	if req.Reasoning != nil {
		out.Reasoning = &wireReasoning{
			Effort:       req.Reasoning.Effort,
			BudgetTokens: req.Reasoning.BudgetTokens,
		}
	}

	opts := wireOptions{
		Temperature:   req.Options.Temperature,
		MaxTokens:     req.Options.MaxTokens,
		StopSequences: req.Options.StopSequences,
	}
	if opts.Temperature != nil || opts.MaxTokens > 0 || len(opts.StopSequences) > 0 {
		out.Options = &opts
	}

	return out
}

func convertParts(parts []provider.ContentPart) []wirePart {
	if len(parts) == 0 {
		return nil
	}
	out := make([]wirePart, 0, len(parts))
	for _, part := range parts {
		wp := wirePart{Type: string(part.Type), Text: part.Text, MimeType: part.MimeType}
		if len(part.Data) > 0 {
			wp.Data = base64.StdEncoding.EncodeToString(part.Data)
		}
		out = append(out, wp)
	}
	return out
}

// streamChat POSTs the request and decodes the streamed response body,
// mapping decoder events onto ChatEvents. The authoritative-vs-accumulated
// tool call resolution happens once, at stream end.
func (p *Provider) streamChat(ctx context.Context, body []byte, ch chan<- provider.ChatEvent) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		p.health.RecordFailure()
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: "relay: building request: " + err.Error()}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.health.RecordFailure()
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: "relay: " + err.Error(), Retryable: true}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.health.RecordFailure()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		ch <- provider.ChatEvent{
			Type:      provider.EventTypeError,
			Error:     fmt.Sprintf("relay: backend returned %s: %s", resp.Status, bytes.TrimSpace(snippet)),
			Retryable: retryableStatus(resp.StatusCode),
		}
		return
	}

	dec := stream.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				forward(ev, ch)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				if ctx.Err() != nil {
					return
				}
				p.health.RecordFailure()
				ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: "relay: reading stream: " + readErr.Error(), Retryable: true}
				return
			}
			break
		}
	}
	for _, ev := range dec.Finish() {
		forward(ev, ch)
	}

	res := dec.Result()
	if res.Failed {
		// The error event was already forwarded live.
		p.health.RecordFailure()
		return
	}

	for i := range res.ToolCalls {
		call := res.ToolCalls[i]
		ch <- provider.ChatEvent{
			Type: provider.EventTypeToolCall,
			ToolCall: &provider.ToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	if res.Usage != nil {
		ch <- provider.ChatEvent{
			Type: provider.EventTypeUsage,
			Usage: &provider.Usage{
				InputTokens:  res.Usage.PromptTokens,
				OutputTokens: res.Usage.CompletionTokens,
			},
		}
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone, Duration: res.Duration}
}

// forward maps a live decoder event onto a ChatEvent. Authoritative
// tool_calls frames are absorbed silently; Result() folds them in.
func forward(ev stream.Event, ch chan<- provider.ChatEvent) {
	switch ev.Type {
	case stream.EventReasoningStart:
		ch <- provider.ChatEvent{Type: provider.EventTypeReasoningStart}
	case stream.EventReasoning:
		ch <- provider.ChatEvent{Type: provider.EventTypeReasoningDelta, Text: ev.Text}
	case stream.EventReasoningEnd:
		ch <- provider.ChatEvent{Type: provider.EventTypeReasoningEnd}
	case stream.EventContent:
		ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: ev.Text}
	case stream.EventToolCallStart:
		ch <- provider.ChatEvent{
			Type:     provider.EventTypeToolCallStart,
			ToolCall: &provider.ToolCall{ID: ev.Call.ID, Name: ev.Call.Name},
		}
	case stream.EventToolCallArgs:
		ch <- provider.ChatEvent{
			Type:     provider.EventTypeToolCallDelta,
			ToolCall: &provider.ToolCall{ID: ev.CallID},
			ArgsLen:  ev.ArgsLen,
		}
	case stream.EventError:
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: ev.Err, Retryable: ev.Retryable}
	}
}

// retryableStatus reports whether the HTTP status suggests the same
// request could succeed against another attempt or provider.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
