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

func (s *Store) CreateDraft(ctx context.Context, draft *store.Draft) error {
	const q = `INSERT INTO drafts (id, title, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		draft.ID,
		draft.Title,
		draft.Content,
		formatTime(draft.CreatedAt),
		formatTime(draft.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating draft %s: %w", draft.ID, err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*store.Draft, error) {
	const q = `SELECT id, title, content, created_at, updated_at FROM drafts WHERE id = ?`

	var draft store.Draft
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&draft.ID,
		&draft.Title,
		&draft.Content,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting draft %s: %w", id, err)
	}

	draft.CreatedAt = parseTime(createdAt)
	draft.UpdatedAt = parseTime(updatedAt)
	return &draft, nil
}

func (s *Store) UpdateDraft(ctx context.Context, draft *store.Draft) error {
	const q = `UPDATE drafts SET title = ?, content = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		draft.Title,
		draft.Content,
		formatTime(time.Now()),
		draft.ID,
	)
	if err != nil {
		return fmt.Errorf("updating draft %s: %w", draft.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for draft %s: %w", draft.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("draft %s: %w", draft.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListDrafts(ctx context.Context, opts store.ListOpts) ([]*store.Draft, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, title, content, created_at, updated_at
FROM drafts ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*store.Draft
	for rows.Next() {
		var draft store.Draft
		var createdAt, updatedAt string
		if err := rows.Scan(
			&draft.ID,
			&draft.Title,
			&draft.Content,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		draft.CreatedAt = parseTime(createdAt)
		draft.UpdatedAt = parseTime(updatedAt)
		drafts = append(drafts, &draft)
	}

	return drafts, rows.Err()
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for draft %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("draft %s: %w", id, store.ErrNotFound)
	}
	return nil
}
