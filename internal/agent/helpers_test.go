// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package agent_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/store"
)

const eventWait = 5 * time.Second

// holdEvent is a script sentinel: the provider stops emitting and waits
// for cancellation before closing its stream.
const holdEvent = provider.EventType("test_hold")

// scriptedProvider plays back one prepared event sequence per Chat call
// and records every request it saw.
type scriptedProvider struct {
	name string

	mu       sync.Mutex
	turns    [][]provider.ChatEvent
	requests []provider.ChatRequest
	overflow int // Chat calls beyond the script
}

func newScriptedProvider(turns ...[]provider.ChatEvent) *scriptedProvider {
	return &scriptedProvider{name: "scripted", turns: turns}
}

func newNamedProvider(name string, turns ...[]provider.ChatEvent) *scriptedProvider {
	return &scriptedProvider{name: name, turns: turns}
}

func (p *scriptedProvider) Name() string                   { return p.name }
func (p *scriptedProvider) Available(context.Context) bool { return true }
func (p *scriptedProvider) Close() error                   { return nil }

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "fake-model", Name: "Fake", Provider: p.name}}, nil
}

func (p *scriptedProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: p.name}, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var turn []provider.ChatEvent
	if len(p.turns) > 0 {
		turn = p.turns[0]
		p.turns = p.turns[1:]
	} else {
		p.overflow++
	}
	p.mu.Unlock()

	out := make(chan provider.ChatEvent)
	go func() {
		defer close(out)
		for _, ev := range turn {
			if ev.Type == holdEvent {
				<-ctx.Done()
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// fakeSink records mutations and can be told to fail.
type fakeSink struct {
	mu       sync.Mutex
	titles   []string
	contents []string
	err      error
}

func (s *fakeSink) SetTitle(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSink) SetContent(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.contents = append(s.contents, content)
	return nil
}

func (s *fakeSink) lastContent() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contents) == 0 {
		return "", false
	}
	return s.contents[len(s.contents)-1], true
}

func (s *fakeSink) lastTitle() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.titles) == 0 {
		return "", false
	}
	return s.titles[len(s.titles)-1], true
}

// scriptedRemote answers remote tool calls from a fixed map.
type scriptedRemote struct {
	mu      sync.Mutex
	results map[string]string // tool name -> payload
	errs    map[string]error
	calls   []string // tool names in invocation order
}

func (r *scriptedRemote) ExecuteTool(_ context.Context, _ string, toolName, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, toolName)
	if err, ok := r.errs[toolName]; ok {
		return "", err
	}
	return r.results[toolName], nil
}

// blockingRemote parks every call until its context is cancelled.
type blockingRemote struct {
	started chan struct{} // closed on first call
	once    sync.Once
}

func newBlockingRemote() *blockingRemote {
	return &blockingRemote{started: make(chan struct{})}
}

func (r *blockingRemote) ExecuteTool(ctx context.Context, _, _, _ string) (string, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

// fixture wires a full engine over the memory store and a scripted
// provider.
type fixture struct {
	engine  *agent.Engine
	store   *store.Memory
	prov    *scriptedProvider
	session *store.Session
	draft   *store.Draft
}

type fixtureOption func(*agent.Config)

func newFixture(t *testing.T, prov *scriptedProvider, opts ...fixtureOption) *fixture {
	t.Helper()

	mem := store.NewMemory()
	ctx := context.Background()

	draft := &store.Draft{ID: "draft-1", Title: "My Draft", Content: "line1\nline2\nline3\n"}
	require.NoError(t, mem.CreateDraft(ctx, draft))

	session := &store.Session{ID: "sess-1", DraftID: draft.ID, Status: store.SessionStatusActive}
	require.NoError(t, mem.CreateSession(ctx, session))

	registry := provider.NewRegistry()
	registry.Register("scripted", prov)
	require.NoError(t, registry.SetDefault("scripted/fake-model"))

	cfg := agent.Config{
		Router: registry,
		Store:  mem,
		Table:  agent.NewToolTable(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := agent.NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return &fixture{engine: engine, store: mem, prov: prov, session: session, draft: draft}
}

// terminal reports whether an event ends its round. The engine leaves
// round channels open, so tests read up to the terminal event.
func terminal(ev Event) bool {
	switch ev.Type {
	case agent.EventDone, agent.EventCancelled, agent.EventError:
		return true
	}
	return false
}

// drain reads events through the round's terminal event.
func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	return readUntil(t, ch, terminal)
}

// readUntil reads events until pred matches, returning everything read
// including the match.
func readUntil(t *testing.T, ch <-chan Event, pred func(Event) bool) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
			if pred(ev) {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event, got %d so far", len(out))
		}
	}
}

func eventOfType(typ agent.EventType) func(Event) bool {
	return func(ev Event) bool { return ev.Type == typ }
}

// Event aliases keep call sites short.
type Event = agent.Event

// toolCallTurn builds the canonical scripted turn for one complete tool
// call plus done.
func toolCallTurn(callID, name, args string) []provider.ChatEvent {
	return []provider.ChatEvent{
		{Type: provider.EventTypeToolCall, ToolCall: &provider.ToolCall{ID: callID, Name: name, Arguments: args}},
		{Type: provider.EventTypeDone},
	}
}

func textTurn(text string) []provider.ChatEvent {
	return []provider.ChatEvent{
		{Type: provider.EventTypeTextDelta, Text: text},
		{Type: provider.EventTypeDone},
	}
}

// waitPhase polls until the session reaches the wanted phase.
func waitPhase(t *testing.T, engine *agent.Engine, sessionID string, want agent.Phase) {
	t.Helper()
	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		if engine.Phase(sessionID) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session never reached phase %s, still %s", want, engine.Phase(sessionID))
}
