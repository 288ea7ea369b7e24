// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/plugin"
	"github.com/inkwell-dev/inkwell/internal/server"
	"github.com/inkwell-dev/inkwell/internal/store"
)

// fakeEngine scripts engine behavior and records what the routes asked
// of it.
type fakeEngine struct {
	mu sync.Mutex

	events     []agent.Event
	sendErr    error
	resolveErr error
	phase      agent.Phase
	changes    []*agent.PendingChange

	sent      [][2]string // sessionID, content
	accepted  [][2]string // sessionID, changeID
	rejected  [][2]string
	cancelled []string
}

func (f *fakeEngine) Send(_ context.Context, sessionID, content string) (<-chan agent.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, [2]string{sessionID, content})

	// Buffered and never closed, like the real engine's round channel.
	ch := make(chan agent.Event, len(f.events)+1)
	for _, ev := range f.events {
		ch <- ev
	}
	return ch, nil
}

func (f *fakeEngine) Cancel(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
	return nil
}

func (f *fakeEngine) Accept(_ context.Context, sessionID, changeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.accepted = append(f.accepted, [2]string{sessionID, changeID})
	return nil
}

func (f *fakeEngine) Reject(_ context.Context, sessionID, changeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.rejected = append(f.rejected, [2]string{sessionID, changeID})
	return nil
}

func (f *fakeEngine) Phase(string) agent.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == "" {
		return agent.PhaseIdle
	}
	return f.phase
}

func (f *fakeEngine) PendingChanges(string) []*agent.PendingChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes
}

// fakePlugins satisfies server.PluginDirectory.
type fakePlugins struct {
	infos []plugin.PluginInfo
}

func (f *fakePlugins) Plugins() []plugin.PluginInfo { return f.infos }

// fakeProviders satisfies server.ProviderDirectory.
type fakeProviders struct {
	names []string
}

func (f *fakeProviders) Names() []string { return f.names }

// newTestServer builds a server over the given config with test
// defaults filled in.
func newTestServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// seedSession creates a draft and an active session over it.
func seedSession(t *testing.T, st store.Store, content string) (*store.Session, *store.Draft) {
	t.Helper()
	now := time.Now()
	draft := &store.Draft{
		ID:        "draft-1",
		Title:     "Field notes",
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateDraft(context.Background(), draft))

	session := &store.Session{
		ID:        "sess-1",
		DraftID:   draft.ID,
		Status:    store.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateSession(context.Background(), session))
	return session, draft
}

// doRequest runs one request through the handler and returns the
// recorder.
func doRequest(srv *server.Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}
