// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package stream decodes the line-oriented event protocol spoken by
// draft-editing model backends. Frames arrive as "event:" / "data:" line
// pairs separated by blank lines; the decoder is incremental and tolerates
// frames split across arbitrary read boundaries.
package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// EventType identifies a decoded stream event.
type EventType string

const (
	EventReasoningStart EventType = "reasoning_start"
	EventReasoning      EventType = "reasoning"
	EventReasoningEnd   EventType = "reasoning_end"
	EventContent        EventType = "content"
	EventToolCallStart  EventType = "tool_call_start"
	EventToolCallArgs   EventType = "tool_call_arguments"
	EventToolCalls      EventType = "tool_calls"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// argsEmitInterval caps how often argument-progress events surface per
// tool call. Every delta is still appended to the call's argument buffer.
const argsEmitInterval = 100 * time.Millisecond

// ToolCall is one requested tool invocation as assembled from the wire.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Index     int
	Location  string // "local" or "remote"; empty means local
}

// Usage reports token accounting from the backend.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Event is a single decoded occurrence. Only the fields relevant to Type
// are populated.
type Event struct {
	Type      EventType
	Text      string        // EventReasoning, EventContent
	Call      *ToolCall     // EventToolCallStart (skeleton)
	CallID    string        // EventToolCallArgs
	ArgsLen   int           // EventToolCallArgs running length
	Calls     []ToolCall    // EventToolCalls (authoritative list)
	Usage     *Usage        // EventDone
	Duration  time.Duration // EventDone
	Err       string        // EventError
	Retryable bool          // EventError
}

// Result is the accumulated state of a fully (or partially) consumed
// stream. ToolCalls is the authoritative final list when the backend sent
// one, otherwise the calls assembled from start/argument deltas in the
// order they were announced.
type Result struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     *Usage
	Duration  time.Duration
	Done      bool
	Failed    bool
	Err       string
	Retryable bool
}

type callDraft struct {
	call     ToolCall
	argsLen  int
	lastEmit time.Time
}

// Decoder incrementally parses the wire protocol. Not safe for concurrent
// use; a decoder belongs to exactly one stream.
type Decoder struct {
	rem          []byte
	pendingEvent string

	content   strings.Builder
	reasoning strings.Builder

	drafts map[string]*callDraft
	order  []string
	final  []ToolCall

	usage     *Usage
	duration  time.Duration
	done      bool
	failed    bool
	errMsg    string
	retryable bool

	nowFunc func() time.Time
}

// NewDecoder returns a decoder ready to consume a fresh stream.
func NewDecoder() *Decoder {
	return &Decoder{
		drafts:  make(map[string]*callDraft),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (d *Decoder) SetNowFunc(fn func() time.Time) {
	d.nowFunc = fn
}

// Feed consumes the next chunk of stream bytes and returns the events it
// completed. Partial trailing lines are buffered until the next Feed or
// Finish call.
func (d *Decoder) Feed(p []byte) []Event {
	if len(p) == 0 {
		return nil
	}
	d.rem = append(d.rem, p...)

	var events []Event
	for {
		idx := bytes.IndexByte(d.rem, '\n')
		if idx < 0 {
			break
		}
		line := d.rem[:idx]
		d.rem = d.rem[idx+1:]
		events = append(events, d.consumeLine(line)...)
	}
	return events
}

// Finish flushes any buffered trailing line once the stream has ended.
func (d *Decoder) Finish() []Event {
	if len(d.rem) == 0 {
		return nil
	}
	line := d.rem
	d.rem = nil
	return d.consumeLine(line)
}

// Result snapshots the accumulated stream state.
func (d *Decoder) Result() Result {
	res := Result{
		Content:   d.content.String(),
		Reasoning: d.reasoning.String(),
		Usage:     d.usage,
		Duration:  d.duration,
		Done:      d.done,
		Failed:    d.failed,
		Err:       d.errMsg,
		Retryable: d.retryable,
	}

	if d.final != nil {
		res.ToolCalls = append([]ToolCall(nil), d.final...)
		return res
	}

	for _, id := range d.order {
		draft := d.drafts[id]
		res.ToolCalls = append(res.ToolCalls, draft.call)
	}
	return res
}

func (d *Decoder) consumeLine(raw []byte) []Event {
	line := bytes.TrimSuffix(raw, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		// Frame boundary. A dangling event: tag without data is dropped.
		d.pendingEvent = ""
		return nil
	}

	if rest, ok := bytes.CutPrefix(line, []byte("event:")); ok {
		d.pendingEvent = string(bytes.TrimSpace(rest))
		return nil
	}

	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		eventType := d.pendingEvent
		d.pendingEvent = ""
		return d.consumeFrame(eventType, bytes.TrimSpace(rest))
	}

	// Untagged line: legacy records are bare JSON objects carrying the
	// same fields as tagged frames. Anything else is noise.
	if len(line) > 0 && line[0] == '{' {
		return d.consumeFrame("", line)
	}

	slog.Debug("stream: dropping unrecognized line", "prefix", truncate(string(line), 32))
	return nil
}

// framePayload is the union of fields a data line may carry.
type framePayload struct {
	Content         string         `json:"content"`
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Index           int            `json:"index"`
	ArgumentsDelta  string         `json:"argumentsDelta"`
	ArgumentsLength int            `json:"argumentsLength"`
	ToolCalls       []wireToolCall `json:"toolCalls"`
	Usage           *Usage         `json:"usage"`
	Duration        int64          `json:"duration"` // milliseconds
	Error           string         `json:"error"`
	Retryable       bool           `json:"retryable"`
}

type wireToolCall struct {
	ID                string       `json:"id"`
	Type              string       `json:"type"`
	Function          wireFunction `json:"function"`
	ExecutionLocation string       `json:"executionLocation"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (d *Decoder) consumeFrame(eventType string, data []byte) []Event {
	var payload framePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed frames never abort the stream.
		slog.Debug("stream: dropping malformed frame", "event", eventType, "error", err)
		return nil
	}

	if eventType == "" {
		eventType = inferLegacyType(payload)
		if eventType == "" {
			slog.Debug("stream: dropping legacy record with no recognizable fields")
			return nil
		}
	}

	switch EventType(eventType) {
	case EventReasoningStart:
		return []Event{{Type: EventReasoningStart}}

	case EventReasoning:
		d.reasoning.WriteString(payload.Content)
		return []Event{{Type: EventReasoning, Text: payload.Content}}

	case EventReasoningEnd:
		return []Event{{Type: EventReasoningEnd}}

	case EventContent:
		d.content.WriteString(payload.Content)
		return []Event{{Type: EventContent, Text: payload.Content}}

	case EventToolCallStart:
		return d.startCall(payload)

	case EventToolCallArgs:
		return d.appendArgs(payload)

	case EventToolCalls:
		d.final = make([]ToolCall, 0, len(payload.ToolCalls))
		for i, wc := range payload.ToolCalls {
			d.final = append(d.final, ToolCall{
				ID:        wc.ID,
				Name:      wc.Function.Name,
				Arguments: wc.Function.Arguments,
				Index:     i,
				Location:  wc.ExecutionLocation,
			})
		}
		return []Event{{Type: EventToolCalls, Calls: append([]ToolCall(nil), d.final...)}}

	case EventDone:
		d.done = true
		d.usage = payload.Usage
		d.duration = time.Duration(payload.Duration) * time.Millisecond
		return []Event{{Type: EventDone, Usage: payload.Usage, Duration: d.duration}}

	case EventError:
		d.failed = true
		d.errMsg = payload.Error
		d.retryable = payload.Retryable
		return []Event{{Type: EventError, Err: payload.Error, Retryable: payload.Retryable}}

	default:
		slog.Debug("stream: dropping frame with unknown event type", "event", eventType)
		return nil
	}
}

func (d *Decoder) startCall(payload framePayload) []Event {
	if payload.ID == "" {
		return nil
	}
	if _, exists := d.drafts[payload.ID]; exists {
		// Duplicate announcement for a known call.
		return nil
	}

	draft := &callDraft{
		call: ToolCall{
			ID:    payload.ID,
			Name:  payload.Name,
			Index: payload.Index,
		},
	}
	d.drafts[payload.ID] = draft
	d.order = append(d.order, payload.ID)

	call := draft.call
	return []Event{{Type: EventToolCallStart, Call: &call}}
}

func (d *Decoder) appendArgs(payload framePayload) []Event {
	if payload.ID == "" {
		return nil
	}

	draft, ok := d.drafts[payload.ID]
	if !ok {
		// Argument delta for a call never announced: register it so the
		// buffer is not lost.
		draft = &callDraft{call: ToolCall{ID: payload.ID, Name: payload.Name, Index: payload.Index}}
		d.drafts[payload.ID] = draft
		d.order = append(d.order, payload.ID)
	}

	draft.call.Arguments += payload.ArgumentsDelta
	if payload.ArgumentsLength > 0 {
		draft.argsLen = payload.ArgumentsLength
	} else {
		draft.argsLen = len(draft.call.Arguments)
	}

	now := d.nowFunc()
	if !draft.lastEmit.IsZero() && now.Sub(draft.lastEmit) < argsEmitInterval {
		return nil
	}
	draft.lastEmit = now
	return []Event{{Type: EventToolCallArgs, CallID: payload.ID, ArgsLen: draft.argsLen}}
}

// inferLegacyType maps an untagged record onto the event it most plausibly
// represents, by field presence.
func inferLegacyType(p framePayload) string {
	switch {
	case len(p.ToolCalls) > 0:
		return string(EventToolCalls)
	case p.Error != "":
		return string(EventError)
	case p.Usage != nil || p.Duration > 0:
		return string(EventDone)
	case p.Content != "":
		return string(EventContent)
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
