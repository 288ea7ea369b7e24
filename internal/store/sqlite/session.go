// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-dev/inkwell/internal/store"
)

func (s *Store) CreateSession(ctx context.Context, session *store.Session) error {
	const q = `INSERT INTO sessions (id, draft_id, summary, model_override, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.DraftID,
		session.Summary,
		session.ModelOverride,
		string(session.Status),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", session.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, draft_id, summary, model_override, status, created_at, updated_at
FROM sessions WHERE id = ?`

	var sess store.Session
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&sess.ID,
		&sess.DraftID,
		&sess.Summary,
		&sess.ModelOverride,
		&sess.Status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}

	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, session *store.Session) error {
	const q = `UPDATE sessions SET draft_id = ?, summary = ?, model_override = ?, status = ?, updated_at = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		session.DraftID,
		session.Summary,
		session.ModelOverride,
		string(session.Status),
		formatTime(time.Now()),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", session.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for session %s: %w", session.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", session.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, opts store.ListOpts) ([]*store.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, draft_id, summary, model_override, status, created_at, updated_at
FROM sessions ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		var sess store.Session
		var createdAt, updatedAt string
		if err := rows.Scan(
			&sess.ID,
			&sess.DraftID,
			&sess.Summary,
			&sess.ModelOverride,
			&sess.Status,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sess.CreatedAt = parseTime(createdAt)
		sess.UpdatedAt = parseTime(updatedAt)
		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for session %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}
