// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey string
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	config Config
	health *provider.HealthTracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, inkerr.New(inkerr.CodeProviderRequestInvalid, "google: missing api_key in config", inkerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
		config: cfg,
		health: provider.NewHealthTracker(provider.DefaultFailureThreshold, provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

// knownModels returns the hardcoded set of known Google Gemini models.
func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{
			ID:       "gemini-2.5-pro",
			Name:     "Gemini 2.5 Pro",
			Provider: "google",
			Capabilities: provider.ModelCapabilities{
				SupportsTools:     true,
				SupportsVision:    true,
				SupportsStreaming: true,
				SupportsThinking:  true,
				MaxContextTokens:  1000000,
				MaxOutputTokens:   65536,
			},
		},
		{
			ID:       "gemini-2.5-flash",
			Name:     "Gemini 2.5 Flash",
			Provider: "google",
			Capabilities: provider.ModelCapabilities{
				SupportsTools:     true,
				SupportsVision:    true,
				SupportsStreaming: true,
				SupportsThinking:  true,
				MaxContextTokens:  1000000,
				MaxOutputTokens:   65536,
			},
		},
		{
			ID:       "gemini-2.0-flash",
			Name:     "Gemini 2.0 Flash",
			Provider: "google",
			Capabilities: provider.ModelCapabilities{
				SupportsTools:     true,
				SupportsVision:    true,
				SupportsStreaming: true,
				MaxContextTokens:  1000000,
				MaxOutputTokens:   8192,
			},
		},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeProviderRequestInvalid, "google: converting messages")
	}

	config := buildConfig(req)

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, req.Model, contents, config, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  "google",
		Message:   "ok",
	}, nil
}

func (p *Provider) Close() error { return nil }

// buildConfig converts a provider.ChatRequest into a genai.GenerateContentConfig.
func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}

	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}

	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}

	system := req.SystemPrompt
	if req.ContextSummary != "" {
		if system != "" {
			system += "\n\n"
		}
		system += "Summary of the earlier conversation:\n" + req.ContextSummary
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: system},
			},
		}
	}

	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}

	if req.Reasoning != nil {
		thinking := &genai.ThinkingConfig{IncludeThoughts: true}
		if req.Reasoning.BudgetTokens > 0 {
			thinking.ThinkingBudget = genai.Ptr(int32(req.Reasoning.BudgetTokens))
		}
		cfg.ThinkingConfig = thinking
	}

	return cfg
}

// convertMessages transforms provider.Message slices into genai.Content
// slices. System messages are excluded (handled via SystemInstruction in
// buildConfig). Assistant messages replay their function calls so the
// backend threads tool responses correctly.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case store.MessageRoleUser:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: userParts(msg),
			})
		case store.MessageRoleAssistant:
			parts, err := assistantParts(msg)
			if err != nil {
				return nil, err
			}
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: parts,
			})
		case store.MessageRoleTool:
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{
					{
						FunctionResponse: &genai.FunctionResponse{
							Name:     msg.ToolName,
							Response: map[string]any{"result": msg.Content},
						},
					},
				},
			})
		case store.MessageRoleSystem:
			continue
		default:
			return nil, inkerr.Errorf(inkerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func userParts(msg provider.Message) []*genai.Part {
	if len(msg.Parts) == 0 {
		return []*genai.Part{{Text: msg.Content}}
	}
	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case provider.PartTypeImage:
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: part.MimeType, Data: part.Data},
			})
		default:
			parts = append(parts, &genai.Part{Text: part.Text})
		}
	}
	return parts
}

func assistantParts(msg provider.Message) ([]*genai.Part, error) {
	var parts []*genai.Part
	if msg.Content != "" {
		parts = append(parts, &genai.Part{Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				return nil, inkerr.Errorf(inkerr.CodeProviderRequestInvalid,
					"google: tool call %q has non-object arguments: %w", call.Name, err)
			}
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args},
		})
	}
	return parts, nil
}

// convertTools transforms provider.ToolDefinition slices into genai.Tool slices.
func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}
}

// streamChat runs the streaming loop, converting SDK responses into provider.ChatEvent values.
func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			p.health.RecordFailure()
			ch <- provider.ChatEvent{
				Type:      provider.EventTypeError,
				Error:     err.Error(),
				Retryable: true,
			}
			return
		}

		// Process each candidate's parts.
		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					eventType := provider.EventTypeTextDelta
					if part.Thought {
						eventType = provider.EventTypeReasoningDelta
					}
					ch <- provider.ChatEvent{
						Type: eventType,
						Text: part.Text,
					}
				}
				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						p.health.RecordFailure()
						// Log detailed context before returning error event
						argsStr := fmt.Sprintf("%v", part.FunctionCall.Args)
						if len(argsStr) > 200 {
							argsStr = argsStr[:200] + "..."
						}
						slog.Error("failed to marshal tool call arguments",
							"function", part.FunctionCall.Name,
							"args_preview", argsStr,
							"error", err,
						)
						ch <- provider.ChatEvent{
							Type:  provider.EventTypeError,
							Error: inkerr.Errorf(inkerr.CodeProviderUpstreamFailure, "google: marshaling tool call arguments for %q: %w", part.FunctionCall.Name, err).Error(),
						}
						return
					}
					ch <- provider.ChatEvent{
						Type: provider.EventTypeToolCall,
						ToolCall: &provider.ToolCall{
							ID:        part.FunctionCall.ID,
							Name:      part.FunctionCall.Name,
							Arguments: string(args),
						},
					}
				}
			}
		}

		// Emit usage from the response if available.
		if result.UsageMetadata != nil {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:     int(result.UsageMetadata.PromptTokenCount),
					OutputTokens:    int(result.UsageMetadata.CandidatesTokenCount),
					CacheReadTokens: int(result.UsageMetadata.CachedContentTokenCount),
				},
			}
		}
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
