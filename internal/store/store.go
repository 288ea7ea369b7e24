// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package store

import "context"

// SessionStore manages editing sessions and their message history.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, opts ListOpts) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Messages append during a round and update in place as streaming
	// and tool execution advance their status.
	AppendMessage(ctx context.Context, sessionID string, msg *Message) error
	UpdateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, sessionID string, opts ListOpts) ([]*Message, error)

	// GetActiveWindow returns the last N messages in chronological order.
	GetActiveWindow(ctx context.Context, sessionID string, limit int) ([]*Message, error)
}

// DraftStore manages the documents sessions edit.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *Draft) error
	GetDraft(ctx context.Context, id string) (*Draft, error)
	UpdateDraft(ctx context.Context, draft *Draft) error
	ListDrafts(ctx context.Context, opts ListOpts) ([]*Draft, error)
	DeleteDraft(ctx context.Context, id string) error
}

// Store is a complete persistence backend.
type Store interface {
	SessionStore
	DraftStore
	Close() error
}
