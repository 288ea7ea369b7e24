// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package document

import (
	"context"
	"log/slog"

	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Sink receives draft mutations once the engine decides they apply.
// Implementations are bound to a single draft.
type Sink interface {
	SetTitle(ctx context.Context, title string) error
	SetContent(ctx context.Context, content string) error
}

// Editor is the minimal surface a host editor exposes for draft edits.
type Editor interface {
	SetTitle(ctx context.Context, draftID, title string) error
}

// ContentSetter writes content in place, preserving the host's view
// state (cursor, scroll, selection).
type ContentSetter interface {
	SetContentInPlace(ctx context.Context, draftID, content string) error
}

// ContentReplacer swaps the whole draft body and refreshes the host view
// afterwards. Used when in-place writes are not available.
type ContentReplacer interface {
	ReplaceContent(ctx context.Context, draftID, content string) error
	Refresh(ctx context.Context, draftID string) error
}

// EditorSink adapts a host editor to the Sink interface. Content writes
// prefer the in-place path and fall back to replace+refresh.
type EditorSink struct {
	draftID string
	editor  Editor
}

var _ Sink = (*EditorSink)(nil)

func NewEditorSink(draftID string, editor Editor) *EditorSink {
	return &EditorSink{draftID: draftID, editor: editor}
}

func (s *EditorSink) SetTitle(ctx context.Context, title string) error {
	if err := s.editor.SetTitle(ctx, s.draftID, title); err != nil {
		return inkerr.Wrap(err, inkerr.CodeDocumentSinkFailure, "set draft title",
			inkerr.FieldDraftID(s.draftID))
	}
	return nil
}

func (s *EditorSink) SetContent(ctx context.Context, content string) error {
	if setter, ok := s.editor.(ContentSetter); ok {
		if err := setter.SetContentInPlace(ctx, s.draftID, content); err != nil {
			return inkerr.Wrap(err, inkerr.CodeDocumentSinkFailure, "set draft content",
				inkerr.FieldDraftID(s.draftID))
		}
		return nil
	}
	replacer, ok := s.editor.(ContentReplacer)
	if !ok {
		return inkerr.New(inkerr.CodeDocumentSinkFailure,
			"editor supports neither in-place nor replace content updates",
			inkerr.FieldDraftID(s.draftID))
	}
	if err := replacer.ReplaceContent(ctx, s.draftID, content); err != nil {
		return inkerr.Wrap(err, inkerr.CodeDocumentSinkFailure, "replace draft content",
			inkerr.FieldDraftID(s.draftID))
	}
	// The content is already in place; a failed refresh only leaves the
	// host view stale.
	if err := replacer.Refresh(ctx, s.draftID); err != nil {
		slog.Warn("draft refresh failed after replace",
			"draft_id", s.draftID, "error", err)
	}
	return nil
}

// StoreSink persists mutations through the draft store.
type StoreSink struct {
	draftID string
	drafts  store.DraftStore
}

var _ Sink = (*StoreSink)(nil)

func NewStoreSink(draftID string, drafts store.DraftStore) *StoreSink {
	return &StoreSink{draftID: draftID, drafts: drafts}
}

func (s *StoreSink) SetTitle(ctx context.Context, title string) error {
	return s.update(ctx, func(d *store.Draft) { d.Title = title })
}

func (s *StoreSink) SetContent(ctx context.Context, content string) error {
	return s.update(ctx, func(d *store.Draft) { d.Content = content })
}

func (s *StoreSink) update(ctx context.Context, mutate func(*store.Draft)) error {
	draft, err := s.drafts.GetDraft(ctx, s.draftID)
	if err != nil {
		return inkerr.Wrap(err, inkerr.CodeDocumentSinkFailure, "load draft",
			inkerr.FieldDraftID(s.draftID))
	}
	mutate(draft)
	if err := s.drafts.UpdateDraft(ctx, draft); err != nil {
		return inkerr.Wrap(err, inkerr.CodeDocumentSinkFailure, "persist draft",
			inkerr.FieldDraftID(s.draftID))
	}
	return nil
}
