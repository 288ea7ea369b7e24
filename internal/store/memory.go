// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

func init() {
	RegisterBackend("memory", func(string) (Store, error) {
		return NewMemory(), nil
	})
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store used for tests and the `inkwell start
// --storage memory` mode. All reads return copies so callers never alias
// internal state.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message // sessionID -> chronological order
	msgIndex map[string]*Message   // message ID -> entry in messages
	drafts   map[string]*Draft
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
		msgIndex: make(map[string]*Message),
		drafts:   make(map[string]*Draft),
	}
}

func (m *Memory) Close() error { return nil }

// --- Sessions ---

func (m *Memory) CreateSession(_ context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id required: %w", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, ErrConflict)
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (m *Memory) UpdateSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	cp := *session
	cp.UpdatedAt = time.Now()
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Memory) ListSessions(_ context.Context, opts ListOpts) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	return page(all, opts), nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	for _, msg := range m.messages[id] {
		delete(m.msgIndex, msg.ID)
	}
	delete(m.messages, id)
	return nil
}

// --- Messages ---

func (m *Memory) AppendMessage(_ context.Context, sessionID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if msg.ID == "" {
		return fmt.Errorf("message id required: %w", ErrInvalidInput)
	}
	if _, exists := m.msgIndex[msg.ID]; exists {
		return fmt.Errorf("message %s: %w", msg.ID, ErrConflict)
	}

	cp := copyMessage(msg)
	cp.SessionID = sessionID
	m.messages[sessionID] = append(m.messages[sessionID], cp)
	m.msgIndex[msg.ID] = cp
	return nil
}

func (m *Memory) UpdateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.msgIndex[msg.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNotFound)
	}
	if msg.Status != existing.Status && !existing.Status.CanTransition(msg.Status) {
		return fmt.Errorf("message %s cannot move from %s to %s: %w",
			msg.ID, existing.Status, msg.Status, ErrInvalidInput)
	}
	cp := copyMessage(msg)
	cp.SessionID = existing.SessionID
	cp.CreatedAt = existing.CreatedAt
	*existing = *cp
	return nil
}

func (m *Memory) GetMessage(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.msgIndex[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return copyMessage(msg), nil
}

func (m *Memory) ListMessages(_ context.Context, sessionID string, opts ListOpts) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	msgs := m.messages[sessionID]
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, copyMessage(msg))
	}
	return page(out, opts), nil
}

func (m *Memory) GetActiveWindow(_ context.Context, sessionID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]*Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, copyMessage(msg))
	}
	return out, nil
}

// --- Drafts ---

func (m *Memory) CreateDraft(_ context.Context, draft *Draft) error {
	if draft.ID == "" {
		return fmt.Errorf("draft id required: %w", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.drafts[draft.ID]; exists {
		return fmt.Errorf("draft %s: %w", draft.ID, ErrConflict)
	}
	cp := *draft
	m.drafts[draft.ID] = &cp
	return nil
}

func (m *Memory) GetDraft(_ context.Context, id string) (*Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	draft, ok := m.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	cp := *draft
	return &cp, nil
}

func (m *Memory) UpdateDraft(_ context.Context, draft *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.drafts[draft.ID]; !ok {
		return fmt.Errorf("draft %s: %w", draft.ID, ErrNotFound)
	}
	cp := *draft
	cp.UpdatedAt = time.Now()
	m.drafts[draft.ID] = &cp
	return nil
}

func (m *Memory) ListDrafts(_ context.Context, opts ListOpts) ([]*Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Draft, 0, len(m.drafts))
	for _, d := range m.drafts {
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	return page(all, opts), nil
}

func (m *Memory) DeleteDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.drafts[id]; !ok {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	delete(m.drafts, id)
	return nil
}

func copyMessage(msg *Message) *Message {
	cp := *msg
	if msg.ToolCalls != nil {
		cp.ToolCalls = append([]ToolCallRecord(nil), msg.ToolCalls...)
	}
	if msg.Usage != nil {
		u := *msg.Usage
		cp.Usage = &u
	}
	return &cp
}

func page[T any](items []*T, opts ListOpts) []*T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
