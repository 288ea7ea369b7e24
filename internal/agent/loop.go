// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package agent runs the draft-editing conversation loop: streamed model
// turns, strictly ordered tool dispatch, approval gating for proposed
// edits, and rounds that suspend and resume around user decisions.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-dev/inkwell/internal/diff"
	"github.com/inkwell-dev/inkwell/internal/document"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

const (
	// DefaultMaxDepth bounds consecutive tool rounds for one user input.
	DefaultMaxDepth = 8
	// DefaultQueueSize bounds inputs waiting behind an active round.
	DefaultQueueSize = 16
	// DefaultHistoryWindow is how many stored messages a request replays.
	DefaultHistoryWindow = 50

	eventBuffer = 256
)

// interruptedReason marks tool calls aborted by cancellation.
const interruptedReason = "interrupted"

// excludingRouter is the failover surface the registry offers beyond the
// basic Router interface.
type excludingRouter interface {
	RouteExcluding(ctx context.Context, sessionID, modelName string, exclude []string) (provider.Provider, string, error)
	MaxAttempts() int
}

// Config holds dependencies and tuning for an Engine.
type Config struct {
	Router provider.Router
	Store  store.Store
	Table  *ToolTable

	Policy ApprovalPolicy // nil selects DefaultPolicy
	Remote RemoteExecutor // nil disables remote tools

	// SinkFor builds the mutation sink for a draft. Nil uses a StoreSink
	// over Store.
	SinkFor func(draftID string) document.Sink

	MaxDepth       int
	UnlimitedDepth bool
	QueueSize      int
	HistoryWindow  int
	DiffOptions    diff.Options
	FuzzyThreshold float64
	MaxCandidates  int

	// SystemPrompt overrides the built-in role preamble. The draft
	// status line is appended either way.
	SystemPrompt string
	Reasoning    *provider.ReasoningConfig

	Logger *slog.Logger
}

// Engine drives conversation rounds for all sessions.
type Engine struct {
	router    provider.Router
	store     store.Store
	table     *ToolTable
	disp      *Dispatcher
	sinkFor   func(string) document.Sink
	maxDepth  int
	unlimited bool
	queueSize int
	window    int
	prompt    string
	reasoning *provider.ReasoningConfig
	log       *slog.Logger

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Router == nil {
		return nil, inkerr.New(inkerr.CodeAgentLoopInvalidInput, "Router is required")
	}
	if cfg.Store == nil {
		return nil, inkerr.New(inkerr.CodeAgentLoopInvalidInput, "Store is required")
	}
	if cfg.Table == nil {
		return nil, inkerr.New(inkerr.CodeAgentLoopInvalidInput, "Table is required")
	}

	disp, err := NewDispatcher(DispatcherConfig{
		Table:          cfg.Table,
		Policy:         cfg.Policy,
		Remote:         cfg.Remote,
		DiffOptions:    cfg.DiffOptions,
		FuzzyThreshold: cfg.FuzzyThreshold,
		MaxCandidates:  cfg.MaxCandidates,
	})
	if err != nil {
		return nil, err
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	sinkFor := cfg.SinkFor
	if sinkFor == nil {
		drafts := cfg.Store
		sinkFor = func(draftID string) document.Sink {
			return document.NewStoreSink(draftID, drafts)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		router:    cfg.Router,
		store:     cfg.Store,
		table:     cfg.Table,
		disp:      disp,
		sinkFor:   sinkFor,
		maxDepth:  maxDepth,
		unlimited: cfg.UnlimitedDepth,
		queueSize: queueSize,
		window:    window,
		prompt:    cfg.SystemPrompt,
		reasoning: cfg.Reasoning,
		log:       logger,
		runtimes:  make(map[string]*sessionRuntime),
	}, nil
}

// Send dispatches a user message into the session's loop and returns the
// event stream for it. When a round is already in flight the message is
// queued and runs after the session returns to Idle; the returned channel
// then serves the queued round.
//
// The channel is never closed: events are produced by the round
// goroutine and by approval resolutions concurrently. A Done, Cancelled,
// or Error event marks the end of the round; AwaitingApproval means the
// stream stays live across the suspension.
func (e *Engine) Send(ctx context.Context, sessionID, content string) (<-chan Event, error) {
	if strings.TrimSpace(content) == "" {
		return nil, inkerr.New(inkerr.CodeAgentLoopInvalidInput,
			"message content is empty", inkerr.FieldSessionID(sessionID))
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != store.SessionStatusActive {
		return nil, inkerr.New(inkerr.CodeAgentSessionInactive,
			"session is "+string(session.Status)+", only active sessions accept messages",
			inkerr.FieldSessionID(sessionID))
	}

	rt := e.runtime(sessionID, session.DraftID)
	ch := make(chan Event, eventBuffer)

	rt.mu.Lock()
	if rt.phase != PhaseIdle {
		if len(rt.queue) >= e.queueSize {
			rt.mu.Unlock()
			return nil, inkerr.New(inkerr.CodeAgentQueueOverflow,
				fmt.Sprintf("session input queue is full (%d waiting)", e.queueSize),
				inkerr.FieldSessionID(sessionID))
		}
		rt.queue = append(rt.queue, queuedInput{content: content, ch: ch})
		rt.mu.Unlock()
		return ch, nil
	}

	rt.phase = PhaseStreaming
	// Rounds outlive the request that started them; a dropped client
	// never aborts an edit mid-flight.
	roundCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.ch = ch
	rt.mu.Unlock()

	go e.runTurn(roundCtx, rt, content)
	return ch, nil
}

// Cancel aborts the session's in-flight round. Streamed text survives as
// a completed message; unfinished tool calls fail as interrupted and a
// paused round is discarded rather than resumed. Cancelling an idle
// session is a no-op.
func (e *Engine) Cancel(sessionID string) error {
	rt := e.lookupRuntime(sessionID)
	if rt == nil {
		return nil
	}

	rt.mu.Lock()
	switch rt.phase {
	case PhaseIdle:
		rt.mu.Unlock()
		return nil

	case PhaseStreaming, PhaseExecutingTools, PhaseResuming:
		cancel := rt.cancel
		rt.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil

	case PhaseAwaitingApproval:
		// No goroutine is in flight while a round waits on approvals;
		// clean up inline.
		paused := rt.paused
		rt.paused = nil
		rt.pending = make(map[string]*PendingChange)
		rt.order = nil
		rt.mu.Unlock()

		var messageID string
		if paused != nil {
			messageID = paused.MessageID
			failUnfinished(paused.Calls)
			e.completePausedMessage(context.Background(), paused)
		}
		rt.emit(Event{Type: EventCancelled, MessageID: messageID})
		e.finishRound(rt)
		return nil
	}

	rt.mu.Unlock()
	return nil
}

// Close aborts every active round. Sessions finish their cancellation
// cleanup asynchronously.
func (e *Engine) Close() error {
	e.mu.Lock()
	runtimes := make([]*sessionRuntime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		runtimes = append(runtimes, rt)
	}
	e.mu.Unlock()

	for _, rt := range runtimes {
		rt.mu.Lock()
		cancel := rt.cancel
		rt.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	return nil
}

// --- round machinery ---

// runTurn persists the user message and drives rounds until the session
// pauses on approvals or returns to Idle.
func (e *Engine) runTurn(ctx context.Context, rt *sessionRuntime, content string) {
	session, err := e.store.GetSession(ctx, rt.sessionID)
	if err != nil {
		rt.emit(Event{Type: EventError, Error: "loading session: " + err.Error()})
		e.finishRound(rt)
		return
	}

	userMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: rt.sessionID,
		Role:      store.MessageRoleUser,
		Content:   content,
		Status:    store.MessageStatusCompleted,
		CreatedAt: time.Now(),
	}
	e.persistAppend(ctx, rt.sessionID, userMsg)

	draft, err := e.store.GetDraft(ctx, session.DraftID)
	if err != nil {
		rt.emit(Event{Type: EventError, Error: "loading draft: " + err.Error()})
		e.finishRound(rt)
		return
	}

	rt.mu.Lock()
	rt.draft = &document.Context{DraftID: draft.ID, Title: draft.Title, Content: draft.Content}
	rt.applied = &document.Context{DraftID: draft.ID, Title: draft.Title, Content: draft.Content}
	rt.sink = e.sinkFor(draft.ID)
	rt.mu.Unlock()

	history := e.buildHistory(ctx, session, content)
	e.iterate(ctx, rt, session, history, 0)
}

// iterate runs rounds until no tool calls remain, the depth limit trips,
// the round pauses on approvals, or the context is cancelled.
func (e *Engine) iterate(ctx context.Context, rt *sessionRuntime, session *store.Session, history []provider.Message, loopCount int) {
	for {
		if !e.unlimited && loopCount >= e.maxDepth {
			notice := fmt.Sprintf(
				"Stopped after %d consecutive tool rounds. Send another message to continue.",
				e.maxDepth)
			msg := e.newAssistantMessage(rt.sessionID, notice, "", nil, nil)
			e.persistAppend(ctx, rt.sessionID, msg)
			rt.emit(Event{Type: EventError, Error: notice, MessageID: msg.ID})
			e.finishRound(rt)
			return
		}

		rt.setPhase(PhaseStreaming)
		res, err := e.stream(ctx, rt, session, history)
		if err != nil {
			if ctx.Err() != nil {
				e.handleCancel(rt, res, nil)
				return
			}
			if res != nil && (res.text != "" || res.reasoning != "") {
				msg := e.newAssistantMessage(rt.sessionID, res.text, res.reasoning, nil, res.usage)
				msg.Status = store.MessageStatusFailed
				e.persistAppend(context.Background(), rt.sessionID, msg)
			}
			rt.emit(Event{Type: EventError, Error: err.Error()})
			e.finishRound(rt)
			return
		}

		if res.usage != nil {
			rt.emit(Event{Type: EventUsage, Usage: res.usage})
		}

		if len(res.calls) == 0 {
			msg := e.newAssistantMessage(rt.sessionID, res.text, res.reasoning, nil, res.usage)
			e.persistAppend(ctx, rt.sessionID, msg)
			rt.emit(Event{Type: EventDone, MessageID: msg.ID})
			e.finishRound(rt)
			return
		}

		rt.setPhase(PhaseExecutingTools)
		rt.mu.Lock()
		draft, applied, sink := rt.draft, rt.applied, rt.sink
		rt.mu.Unlock()

		records, changes, derr := e.disp.ExecuteAll(ctx, res.calls, draft, applied, sink, func(rec store.ToolCallRecord) {
			rt.emit(Event{Type: EventToolCallUpdate, Call: &rec})
		})
		if derr != nil {
			e.handleCancel(rt, res, records)
			return
		}

		if len(changes) > 0 {
			msg := e.newAssistantMessage(rt.sessionID, res.text, res.reasoning, records, res.usage)
			msg.Status = store.MessageStatusStreaming
			e.persistAppend(ctx, rt.sessionID, msg)

			rt.mu.Lock()
			for _, change := range changes {
				rt.pending[change.ID] = change
				rt.order = append(rt.order, change.ID)
			}
			rt.paused = &PausedRound{
				History:   history,
				LoopCount: loopCount,
				Text:      res.text,
				Reasoning: res.reasoning,
				Calls:     records,
				MessageID: msg.ID,
			}
			rt.phase = PhaseAwaitingApproval
			rt.cancel = nil
			rt.mu.Unlock()

			for _, change := range changes {
				rt.emit(Event{Type: EventChangePending, Change: change})
			}
			rt.emit(Event{Type: EventAwaitingApproval, MessageID: msg.ID})
			return
		}

		msg := e.newAssistantMessage(rt.sessionID, res.text, res.reasoning, records, res.usage)
		e.persistAppend(ctx, rt.sessionID, msg)
		e.persistCallResults(ctx, rt.sessionID, records)

		history = continuationHistory(history, res.text, records)
		loopCount++
	}
}

// streamResult is what one model turn produced.
type streamResult struct {
	text      string
	reasoning string
	calls     []store.ToolCallRecord
	usage     *store.Usage
}

// stream routes to a provider and consumes one model turn, forwarding
// live events to the round channel. A retryable failure before anything
// reached the subscriber walks the failover chain.
func (e *Engine) stream(ctx context.Context, rt *sessionRuntime, session *store.Session, history []provider.Message) (*streamResult, error) {
	rt.mu.Lock()
	draft := rt.draft
	rt.mu.Unlock()

	req := provider.ChatRequest{
		Messages:       history,
		Tools:          e.table.Definitions(),
		SystemPrompt:   e.systemPrompt(draft),
		ContextSummary: session.Summary,
		Reasoning:      e.reasoning,
		Options:        provider.ChatOptions{Stream: true},
	}

	attempts := 1
	ex, canExclude := e.router.(excludingRouter)
	if canExclude {
		attempts = ex.MaxAttempts()
	}

	var tried []string
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var (
			prov  provider.Provider
			model string
			err   error
		)
		if canExclude {
			prov, model, err = ex.RouteExcluding(ctx, session.ID, session.ModelOverride, tried)
		} else {
			prov, model, err = e.router.Route(ctx, session.ID, session.ModelOverride)
		}
		if err != nil {
			if lastErr != nil && inkerr.HasCode(err, inkerr.CodeProviderAllUnavailable) {
				return nil, lastErr
			}
			return nil, err
		}

		req.Model = model
		eventCh, err := prov.Chat(ctx, req)
		if err != nil {
			return nil, inkerr.Wrapf(err, inkerr.CodeProviderUpstreamFailure,
				"chat call to %s", prov.Name())
		}

		res, emitted, streamErr, retryable := e.consume(rt, eventCh)
		if streamErr == nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if retryable && !emitted {
			tried = append(tried, prov.Name())
			lastErr = streamErr
			e.log.Warn("provider stream failed, trying next candidate",
				"session_id", session.ID, "provider", prov.Name(), "error", streamErr)
			continue
		}
		return res, streamErr
	}
	return nil, lastErr
}

// consume drains one provider stream. emitted reports whether anything
// was forwarded to the subscriber, which rules out a silent retry.
func (e *Engine) consume(rt *sessionRuntime, eventCh <-chan provider.ChatEvent) (*streamResult, bool, error, bool) {
	var (
		text      strings.Builder
		reasoning strings.Builder
		calls     []store.ToolCallRecord
		usage     *store.Usage
		streamErr error
		retryable bool
		emitted   bool
	)

	for ev := range eventCh {
		switch ev.Type {
		case provider.EventTypeReasoningStart:
			emitted = true
			rt.emit(Event{Type: EventReasoningStart})
		case provider.EventTypeReasoningDelta:
			emitted = true
			reasoning.WriteString(ev.Text)
			rt.emit(Event{Type: EventReasoningDelta, Text: ev.Text})
		case provider.EventTypeReasoningEnd:
			emitted = true
			rt.emit(Event{Type: EventReasoningEnd})
		case provider.EventTypeTextDelta:
			emitted = true
			text.WriteString(ev.Text)
			rt.emit(Event{Type: EventTextDelta, Text: ev.Text})
		case provider.EventTypeToolCallStart:
			if ev.ToolCall != nil {
				emitted = true
				rt.emit(Event{Type: EventToolCallStart, Call: &store.ToolCallRecord{
					ID:     ev.ToolCall.ID,
					Name:   ev.ToolCall.Name,
					Status: store.ToolCallStatusPending,
				}})
			}
		case provider.EventTypeToolCallDelta:
			if ev.ToolCall != nil {
				emitted = true
				rt.emit(Event{Type: EventToolCallDelta, Call: &store.ToolCallRecord{
					ID:     ev.ToolCall.ID,
					Status: store.ToolCallStatusPending,
				}, ArgsLen: ev.ArgsLen})
			}
		case provider.EventTypeToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, store.ToolCallRecord{
					ID:        ev.ToolCall.ID,
					Name:      ev.ToolCall.Name,
					Arguments: ev.ToolCall.Arguments,
					Status:    store.ToolCallStatusPending,
				})
			}
		case provider.EventTypeUsage:
			if ev.Usage != nil {
				usage = &store.Usage{
					PromptTokens:     ev.Usage.InputTokens,
					CompletionTokens: ev.Usage.OutputTokens,
					TotalTokens:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
				}
			}
		case provider.EventTypeDone:
			// Terminal; usage rides a dedicated event for every provider.
		case provider.EventTypeError:
			streamErr = inkerr.New(inkerr.CodeProviderUpstreamFailure, ev.Error)
			retryable = ev.Retryable
		}
	}

	res := &streamResult{
		text:      text.String(),
		reasoning: reasoning.String(),
		calls:     calls,
		usage:     usage,
	}
	return res, emitted, streamErr, retryable
}

// handleCancel finishes a cancelled round: streamed output survives as a
// completed message, unfinished calls fail as interrupted, and the
// session returns to Idle with nothing left to resume.
func (e *Engine) handleCancel(rt *sessionRuntime, res *streamResult, records []store.ToolCallRecord) {
	calls := records
	if calls == nil && res != nil {
		calls = res.calls
	}
	failUnfinished(calls)

	var messageID string
	if res != nil && (res.text != "" || res.reasoning != "" || len(calls) > 0) {
		msg := e.newAssistantMessage(rt.sessionID, res.text, res.reasoning, calls, res.usage)
		e.persistAppend(context.Background(), rt.sessionID, msg)
		messageID = msg.ID
	}

	rt.emit(Event{Type: EventCancelled, MessageID: messageID})
	e.finishRound(rt)
}

// failUnfinished forces non-terminal calls to failed with the
// interrupted reason.
func failUnfinished(calls []store.ToolCallRecord) {
	for i := range calls {
		if calls[i].Status.CanTransition(store.ToolCallStatusFailed) {
			calls[i].Status = store.ToolCallStatusFailed
			calls[i].Error = interruptedReason
		}
	}
}

// finishRound returns the session to Idle and dispatches the next queued
// input if one is waiting. Every caller emits the round's terminal event
// first; the channel itself is left open because approval resolutions
// emit from their own goroutines.
func (e *Engine) finishRound(rt *sessionRuntime) {
	rt.mu.Lock()
	rt.ch = nil
	rt.cancel = nil
	rt.phase = PhaseIdle

	if len(rt.queue) > 0 {
		next := rt.queue[0]
		rt.queue = rt.queue[1:]

		rt.phase = PhaseStreaming
		roundCtx, cancel := context.WithCancel(context.Background())
		rt.cancel = cancel
		rt.ch = next.ch
		rt.mu.Unlock()

		go e.runTurn(roundCtx, rt, next.content)
		return
	}
	rt.mu.Unlock()
}

// --- history and persistence helpers ---

// buildHistory converts the session's active window into provider
// messages. On a store failure the round falls back to just the new
// user input.
func (e *Engine) buildHistory(ctx context.Context, session *store.Session, content string) []provider.Message {
	msgs, err := e.store.GetActiveWindow(ctx, session.ID, e.window)
	if err != nil {
		e.log.Warn("loading history failed, continuing with current input only",
			"session_id", session.ID, "error", err)
		return []provider.Message{{Role: store.MessageRoleUser, Content: content}}
	}

	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		// Failed turns never got an answer; replaying them would leave
		// dangling tool calls.
		if m.Status == store.MessageStatusFailed {
			continue
		}
		pm := provider.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out = append(out, pm)
	}
	return out
}

// continuationHistory appends the assistant turn and exactly one tool
// result message per call, in original call order.
func continuationHistory(history []provider.Message, text string, records []store.ToolCallRecord) []provider.Message {
	out := make([]provider.Message, len(history), len(history)+1+len(records))
	copy(out, history)

	assistant := provider.Message{Role: store.MessageRoleAssistant, Content: text}
	for _, rec := range records {
		assistant.ToolCalls = append(assistant.ToolCalls, provider.ToolCall{
			ID:        rec.ID,
			Name:      rec.Name,
			Arguments: rec.Arguments,
		})
	}
	out = append(out, assistant)

	for _, rec := range records {
		out = append(out, provider.Message{
			Role:       store.MessageRoleTool,
			Content:    callResultText(rec),
			ToolCallID: rec.ID,
			ToolName:   rec.Name,
		})
	}
	return out
}

func callResultText(rec store.ToolCallRecord) string {
	if rec.Status == store.ToolCallStatusFailed {
		return "error: " + rec.Error
	}
	return rec.Result
}

func (e *Engine) newAssistantMessage(sessionID, text, reasoning string, calls []store.ToolCallRecord, usage *store.Usage) *store.Message {
	return &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      store.MessageRoleAssistant,
		Content:   text,
		Reasoning: reasoning,
		Status:    store.MessageStatusCompleted,
		ToolCalls: calls,
		Usage:     usage,
		CreatedAt: time.Now(),
	}
}

// persistCallResults appends one tool message per call, in call order.
func (e *Engine) persistCallResults(ctx context.Context, sessionID string, records []store.ToolCallRecord) {
	for _, rec := range records {
		e.persistAppend(ctx, sessionID, &store.Message{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			Role:       store.MessageRoleTool,
			Content:    callResultText(rec),
			Status:     store.MessageStatusCompleted,
			ToolCallID: rec.ID,
			ToolName:   rec.Name,
			CreatedAt:  time.Now(),
		})
	}
}

// persistAppend stores a message. Persistence never blocks a round;
// failures are logged and the loop carries on.
func (e *Engine) persistAppend(ctx context.Context, sessionID string, msg *store.Message) {
	if err := e.store.AppendMessage(ctx, sessionID, msg); err != nil {
		e.log.Warn("message append failed",
			"session_id", sessionID, "message_id", msg.ID, "role", msg.Role, "error", err)
	}
}

func (e *Engine) persistUpdate(ctx context.Context, msg *store.Message) {
	if err := e.store.UpdateMessage(ctx, msg); err != nil {
		e.log.Warn("message update failed",
			"session_id", msg.SessionID, "message_id", msg.ID, "error", err)
	}
}

// completePausedMessage marks a paused round's partial message completed
// with the final call records.
func (e *Engine) completePausedMessage(ctx context.Context, paused *PausedRound) {
	msg, err := e.store.GetMessage(ctx, paused.MessageID)
	if err != nil {
		e.log.Warn("loading paused message failed",
			"message_id", paused.MessageID, "error", err)
		return
	}
	msg.Status = store.MessageStatusCompleted
	msg.ToolCalls = paused.Calls
	e.persistUpdate(ctx, msg)
}

func (e *Engine) systemPrompt(draft *document.Context) string {
	var b strings.Builder
	if e.prompt != "" {
		b.WriteString(strings.TrimRight(e.prompt, "\n"))
		b.WriteString("\n")
	} else {
		b.WriteString("You are Inkwell, a drafting assistant. You help the user shape the draft they have open.\n")
		b.WriteString("Read the draft with read_document before editing it. All edits go through tools, and some are held for the user's approval before they apply.\n")
		b.WriteString("When replacing text, copy the search text exactly from the draft, including whitespace.\n")
	}
	if draft != nil {
		fmt.Fprintf(&b, "The draft is titled %q and currently has %d lines.", draft.Title, draft.LineCount())
	}
	return b.String()
}
