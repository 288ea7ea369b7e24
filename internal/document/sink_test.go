// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package document_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/document"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

type baseEditor struct {
	titles map[string]string
}

func (e *baseEditor) SetTitle(_ context.Context, draftID, title string) error {
	if e.titles == nil {
		e.titles = map[string]string{}
	}
	e.titles[draftID] = title
	return nil
}

type inPlaceEditor struct {
	baseEditor
	content  string
	replaced bool
}

func (e *inPlaceEditor) SetContentInPlace(_ context.Context, _, content string) error {
	e.content = content
	return nil
}

func (e *inPlaceEditor) ReplaceContent(_ context.Context, _, content string) error {
	e.replaced = true
	e.content = content
	return nil
}

func (e *inPlaceEditor) Refresh(context.Context, string) error { return nil }

type replacingEditor struct {
	baseEditor
	content    string
	refreshed  bool
	refreshErr error
}

func (e *replacingEditor) ReplaceContent(_ context.Context, _, content string) error {
	e.content = content
	return nil
}

func (e *replacingEditor) Refresh(context.Context, string) error {
	e.refreshed = true
	return e.refreshErr
}

func TestEditorSinkSetsTitle(t *testing.T) {
	ed := &inPlaceEditor{}
	sink := document.NewEditorSink("d1", ed)

	require.NoError(t, sink.SetTitle(context.Background(), "New Title"))
	assert.Equal(t, "New Title", ed.titles["d1"])
}

func TestEditorSinkPrefersInPlace(t *testing.T) {
	ed := &inPlaceEditor{}
	sink := document.NewEditorSink("d1", ed)

	require.NoError(t, sink.SetContent(context.Background(), "body"))
	assert.Equal(t, "body", ed.content)
	assert.False(t, ed.replaced)
}

func TestEditorSinkFallsBackToReplace(t *testing.T) {
	ed := &replacingEditor{}
	sink := document.NewEditorSink("d1", ed)

	require.NoError(t, sink.SetContent(context.Background(), "body"))
	assert.Equal(t, "body", ed.content)
	assert.True(t, ed.refreshed)
}

func TestEditorSinkToleratesRefreshFailure(t *testing.T) {
	ed := &replacingEditor{refreshErr: errors.New("view gone")}
	sink := document.NewEditorSink("d1", ed)

	require.NoError(t, sink.SetContent(context.Background(), "body"))
	assert.Equal(t, "body", ed.content)
}

func TestEditorSinkWithoutContentSupport(t *testing.T) {
	sink := document.NewEditorSink("d1", &baseEditor{})

	err := sink.SetContent(context.Background(), "body")
	require.Error(t, err)
	assert.Equal(t, inkerr.CodeDocumentSinkFailure, inkerr.CodeOf(err))
}

func TestStoreSinkPersists(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateDraft(ctx, &store.Draft{
		ID: "d1", Title: "Old", Content: "old body",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	sink := document.NewStoreSink("d1", mem)
	require.NoError(t, sink.SetTitle(ctx, "New"))
	require.NoError(t, sink.SetContent(ctx, "new body"))

	draft, err := mem.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "New", draft.Title)
	assert.Equal(t, "new body", draft.Content)
}

func TestStoreSinkMissingDraft(t *testing.T) {
	sink := document.NewStoreSink("ghost", store.NewMemory())

	err := sink.SetTitle(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, inkerr.CodeDocumentSinkFailure, inkerr.CodeOf(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
