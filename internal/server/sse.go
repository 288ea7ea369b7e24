// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/store"
)

// chatRequest is the body of the chat endpoint.
type chatRequest struct {
	Content string `json:"content"`
}

// chatResponse is the JSON-mode reply: deltas collected until the round
// finished or paused on approvals.
type chatResponse struct {
	Status    string                 `json:"status" enum:"done,cancelled,error,awaiting_approval"`
	MessageID string                 `json:"messageId,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Changes   []*agent.PendingChange `json:"changes,omitempty"`
	Usage     *store.Usage           `json:"usage,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func (s *Server) registerChatRoute() {
	s.router.Post("/api/v1/sessions/{id}/messages", s.handleChat)

	// The streaming handler needs raw http.ResponseWriter access, so it
	// cannot use huma's handler signature. The chi route above handles
	// requests; this operation documents it in the OpenAPI spec.
	minContentLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "Send a message to the draft-editing agent",
		Description: "Dispatches a user message into the session's loop. Set Accept: text/event-stream to receive engine events as SSE; otherwise the response is a single JSON object collected from the round.",
		Tags:        []string{"chat"},
		Parameters: []*huma.Param{
			{Name: "id", In: "path", Required: true, Schema: &huma.Schema{Type: "string"}},
		},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"content"},
						Properties: map[string]*huma.Schema{
							"content": {
								Type:        "string",
								MinLength:   &minContentLen,
								Description: "Message content",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Round events (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Engine event stream, one SSE event per engine event",
						},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type:        "object",
							Description: "Collected round outcome",
						},
					},
				},
			},
			"422": {Description: "Validation error (missing content)"},
			"429": {Description: "Stream limit exceeded"},
			"503": {Description: "Agent engine not configured"},
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeProblem(w, http.StatusServiceUnavailable, "agent engine not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeProblem(w, http.StatusUnprocessableEntity, "content is required")
		return
	}

	key := limiterKey(r)
	if !s.limiter.allowRequest(key) {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "chat request rate limit exceeded")
		return
	}
	if !s.limiter.acquireStream(key) {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer s.limiter.releaseStream(key)

	sessionID := chi.URLParam(r, "id")
	events, err := s.engine.Send(r.Context(), sessionID, req.Content)
	if err != nil {
		writeProblem(w, errStatus(err), err.Error())
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamEvents(w, r, events)
		return
	}
	s.collectEvents(w, r, events)
}

// streamEvents re-emits engine events as SSE until the round's terminal
// event. The stream stays open across an approval pause; resolutions
// and the resumed round arrive on the same connection.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan agent.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// httptest.ResponseRecorder has no Flusher; events still get written.
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			go drainRound(events)
			return
		case ev := <-events:
			writeSSEEvent(w, flusher, ev)
			if isTerminal(ev.Type) {
				return
			}
		}
	}
}

// collectEvents accumulates one round into a single JSON reply. A round
// that pauses on approvals answers right away with the surfaced changes;
// the client resolves them via the change endpoints and polls messages.
func (s *Server) collectEvents(w http.ResponseWriter, r *http.Request, events <-chan agent.Event) {
	var (
		text    strings.Builder
		changes []*agent.PendingChange
		usage   *store.Usage
		resp    chatResponse
	)

loop:
	for {
		select {
		case <-r.Context().Done():
			go drainRound(events)
			return
		case ev := <-events:
			switch ev.Type {
			case agent.EventTextDelta:
				text.WriteString(ev.Text)
			case agent.EventChangePending:
				changes = append(changes, ev.Change)
			case agent.EventUsage:
				usage = ev.Usage
			case agent.EventAwaitingApproval:
				resp.Status = "awaiting_approval"
				resp.MessageID = ev.MessageID
				go drainRound(events)
				break loop
			case agent.EventDone:
				resp.Status = "done"
				resp.MessageID = ev.MessageID
				break loop
			case agent.EventCancelled:
				resp.Status = "cancelled"
				resp.MessageID = ev.MessageID
				break loop
			case agent.EventError:
				resp.Status = "error"
				resp.MessageID = ev.MessageID
				resp.Error = ev.Error
				break loop
			}
		}
	}

	resp.Text = text.String()
	resp.Changes = changes
	resp.Usage = usage

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Debug("encoding chat response failed", "error", err)
	}
}

// writeSSEEvent writes one engine event in SSE framing. The payload is
// the JSON-marshalled event, which never contains raw newlines.
func writeSSEEvent(w io.Writer, flusher http.Flusher, ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		data = []byte(`{"type":"error","error":"event serialization failed"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	if flusher != nil {
		flusher.Flush()
	}
}

// drainRound consumes an abandoned round's events through its terminal
// event so the engine never blocks emitting to a full buffer. A round
// parked on approvals parks the drain with it; both wake on resolution.
func drainRound(events <-chan agent.Event) {
	for ev := range events {
		if isTerminal(ev.Type) {
			return
		}
	}
}

// isTerminal reports whether an event ends a round.
func isTerminal(t agent.EventType) bool {
	switch t {
	case agent.EventDone, agent.EventCancelled, agent.EventError:
		return true
	}
	return false
}
