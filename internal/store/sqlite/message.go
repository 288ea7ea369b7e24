// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkwell-dev/inkwell/internal/store"
)

const messageColumns = `id, session_id, role, content, reasoning, status, tool_calls, tool_call_id, tool_name, usage, created_at`

func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg *store.Message) error {
	toolCalls, err := marshalToolCalls(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshalling tool calls for message %s: %w", msg.ID, err)
	}
	usage, err := marshalUsage(msg.Usage)
	if err != nil {
		return fmt.Errorf("marshalling usage for message %s: %w", msg.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append for message %s: %w", msg.ID, err)
	}
	defer tx.Rollback()

	// seq keeps history order stable even when timestamps collide.
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("computing sequence for message %s: %w", msg.ID, err)
	}

	const q = `INSERT INTO messages (` + messageColumns + `, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, q,
		msg.ID,
		sessionID,
		string(msg.Role),
		msg.Content,
		msg.Reasoning,
		string(msg.Status),
		toolCalls,
		msg.ToolCallID,
		msg.ToolName,
		usage,
		formatTime(msg.CreatedAt),
		seq,
	)
	if err != nil {
		return fmt.Errorf("appending message %s to session %s: %w", msg.ID, sessionID, err)
	}
	return tx.Commit()
}

func (s *Store) UpdateMessage(ctx context.Context, msg *store.Message) error {
	toolCalls, err := marshalToolCalls(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshalling tool calls for message %s: %w", msg.ID, err)
	}
	usage, err := marshalUsage(msg.Usage)
	if err != nil {
		return fmt.Errorf("marshalling usage for message %s: %w", msg.ID, err)
	}

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM messages WHERE id = ?`, msg.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", msg.ID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading status for message %s: %w", msg.ID, err)
	}
	if from := store.MessageStatus(current); msg.Status != from && !from.CanTransition(msg.Status) {
		return fmt.Errorf("message %s cannot move from %s to %s: %w",
			msg.ID, from, msg.Status, store.ErrInvalidInput)
	}

	const q = `UPDATE messages SET content = ?, reasoning = ?, status = ?, tool_calls = ?, usage = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		msg.Content,
		msg.Reasoning,
		string(msg.Status),
		toolCalls,
		usage,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating message %s: %w", msg.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for message %s: %w", msg.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, opts store.ListOpts) ([]*store.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}

	const q = `SELECT ` + messageColumns + ` FROM messages
WHERE session_id = ? ORDER BY seq ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Store) GetActiveWindow(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	// Sub-select the N most recent, then re-order chronologically.
	const q = `SELECT ` + messageColumns + ` FROM (
	SELECT ` + messageColumns + `, seq FROM messages WHERE session_id = ?
	ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting active window for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var toolCalls, usage, createdAt string

	if err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.Role,
		&msg.Content,
		&msg.Reasoning,
		&msg.Status,
		&toolCalls,
		&msg.ToolCallID,
		&msg.ToolName,
		&usage,
		&createdAt,
	); err != nil {
		return nil, err
	}

	msg.CreatedAt = parseTime(createdAt)
	if toolCalls != "" {
		if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshalling tool calls: %w", err)
		}
	}
	if usage != "" {
		var u store.Usage
		if err := json.Unmarshal([]byte(usage), &u); err != nil {
			return nil, fmt.Errorf("unmarshalling usage: %w", err)
		}
		msg.Usage = &u
	}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]*store.Message, error) {
	var msgs []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func marshalToolCalls(calls []store.ToolCallRecord) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}
	b, err := json.Marshal(calls)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalUsage(u *store.Usage) (string, error) {
	if u == nil {
		return "", nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
