// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/plugin"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create an editing session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session details",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "List session messages",
		Tags:        []string{"sessions"},
	}, s.handleListMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts/{id}",
		Summary:     "Get a draft",
		Tags:        []string{"drafts"},
	}, s.handleGetDraft)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/changes",
		Summary:     "List pending changes",
		Tags:        []string{"changes"},
	}, s.handleListChanges)

	huma.Register(s.api, huma.Operation{
		OperationID: "accept-change",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/changes/{changeId}/accept",
		Summary:     "Accept a pending change",
		Tags:        []string{"changes"},
	}, s.handleAcceptChange)

	huma.Register(s.api, huma.Operation{
		OperationID: "reject-change",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/changes/{changeId}/reject",
		Summary:     "Reject a pending change",
		Tags:        []string{"changes"},
	}, s.handleRejectChange)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/cancel",
		Summary:     "Cancel the in-flight round",
		Tags:        []string{"sessions"},
	}, s.handleCancel)
}

// --- Wire types ---

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

type healthOutput struct {
	Body HealthBody
}

// StatusBody reports what the gateway is running with.
type StatusBody struct {
	Status       string              `json:"status" example:"ok"`
	Version      string              `json:"version"`
	DefaultModel string              `json:"defaultModel,omitempty" doc:"Default provider/model reference"`
	Providers    []string            `json:"providers" doc:"Registered provider names"`
	Plugins      []plugin.PluginInfo `json:"plugins" doc:"Running remote tool plugins"`
}

type statusOutput struct {
	Body StatusBody
}

// SessionBody is the wire form of a stored session.
type SessionBody struct {
	ID        string    `json:"id"`
	DraftID   string    `json:"draftId"`
	Status    string    `json:"status"`
	Model     string    `json:"model,omitempty" doc:"Session provider/model override"`
	Summary   string    `json:"summary,omitempty"`
	Phase     string    `json:"phase,omitempty" doc:"Where the session's round machinery stands"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageBody is the wire form of a stored message.
type MessageBody struct {
	ID         string                 `json:"id"`
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	Status     string                 `json:"status"`
	ToolCalls  []store.ToolCallRecord `json:"toolCalls,omitempty"`
	ToolCallID string                 `json:"toolCallId,omitempty"`
	ToolName   string                 `json:"toolName,omitempty"`
	Usage      *store.Usage           `json:"usage,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// DraftBody is the wire form of a draft.
type DraftBody struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type createSessionInput struct {
	Body struct {
		DraftID string `json:"draftId,omitempty" doc:"Existing draft to edit; omit to create one"`
		Title   string `json:"title,omitempty" doc:"Title for the new draft"`
		Content string `json:"content,omitempty" doc:"Initial content for the new draft"`
		Model   string `json:"model,omitempty" doc:"provider/model override for this session"`
	}
}

type sessionOutput struct {
	Body SessionBody
}

type listSessionsInput struct {
	Limit  int `query:"limit" minimum:"0" doc:"Page size, 0 for all"`
	Offset int `query:"offset" minimum:"0"`
}

type listSessionsOutput struct {
	Body struct {
		Sessions []SessionBody `json:"sessions"`
	}
}

type sessionIDInput struct {
	ID string `path:"id"`
}

type listMessagesInput struct {
	ID     string `path:"id"`
	Limit  int    `query:"limit" minimum:"0" doc:"Page size, 0 for all"`
	Offset int    `query:"offset" minimum:"0"`
}

type listMessagesOutput struct {
	Body struct {
		Messages []MessageBody `json:"messages"`
	}
}

type draftIDInput struct {
	ID string `path:"id"`
}

type draftOutput struct {
	Body DraftBody
}

type listChangesOutput struct {
	Body struct {
		Changes []*agent.PendingChange `json:"changes"`
	}
}

type changeIDInput struct {
	ID       string `path:"id"`
	ChangeID string `path:"changeId"`
}

type resolveChangeOutput struct {
	Body struct {
		ChangeID string `json:"changeId"`
		Outcome  string `json:"outcome" enum:"accepted,rejected"`
	}
}

type cancelOutput struct {
	Body struct {
		Cancelled bool `json:"cancelled"`
	}
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	return &healthOutput{Body: HealthBody{Status: "ok"}}, nil
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Version = s.cfg.Version
	out.Body.DefaultModel = s.cfg.DefaultModel
	out.Body.Providers = []string{}
	if s.cfg.Providers != nil {
		out.Body.Providers = s.cfg.Providers.Names()
	}
	out.Body.Plugins = []plugin.PluginInfo{}
	if s.cfg.Plugins != nil {
		out.Body.Plugins = s.cfg.Plugins.Plugins()
	}
	return out, nil
}

func (s *Server) handleCreateSession(ctx context.Context, input *createSessionInput) (*sessionOutput, error) {
	if s.store == nil {
		return nil, huma.Error503ServiceUnavailable("store not configured")
	}

	now := time.Now()
	draftID := input.Body.DraftID
	if draftID == "" {
		title := input.Body.Title
		if title == "" {
			title = "Untitled"
		}
		draft := &store.Draft{
			ID:        uuid.New().String(),
			Title:     title,
			Content:   input.Body.Content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateDraft(ctx, draft); err != nil {
			return nil, apiError(err)
		}
		draftID = draft.ID
	} else if _, err := s.store.GetDraft(ctx, draftID); err != nil {
		return nil, apiError(err)
	}

	session := &store.Session{
		ID:            uuid.New().String(),
		DraftID:       draftID,
		ModelOverride: input.Body.Model,
		Status:        store.SessionStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, apiError(err)
	}
	return &sessionOutput{Body: s.sessionBody(session)}, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *listSessionsInput) (*listSessionsOutput, error) {
	if s.store == nil {
		return nil, huma.Error503ServiceUnavailable("store not configured")
	}
	sessions, err := s.store.ListSessions(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError(err)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = make([]SessionBody, 0, len(sessions))
	for _, sess := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, s.sessionBody(sess))
	}
	return out, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
	if s.store == nil {
		return nil, huma.Error503ServiceUnavailable("store not configured")
	}
	session, err := s.store.GetSession(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &sessionOutput{Body: s.sessionBody(session)}, nil
}

func (s *Server) handleListMessages(ctx context.Context, input *listMessagesInput) (*listMessagesOutput, error) {
	if s.store == nil {
		return nil, huma.Error503ServiceUnavailable("store not configured")
	}
	msgs, err := s.store.ListMessages(ctx, input.ID, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError(err)
	}
	out := &listMessagesOutput{}
	out.Body.Messages = make([]MessageBody, 0, len(msgs))
	for _, msg := range msgs {
		out.Body.Messages = append(out.Body.Messages, messageBody(msg))
	}
	return out, nil
}

func (s *Server) handleGetDraft(ctx context.Context, input *draftIDInput) (*draftOutput, error) {
	if s.store == nil {
		return nil, huma.Error503ServiceUnavailable("store not configured")
	}
	draft, err := s.store.GetDraft(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &draftOutput{Body: DraftBody{
		ID:        draft.ID,
		Title:     draft.Title,
		Content:   draft.Content,
		CreatedAt: draft.CreatedAt,
		UpdatedAt: draft.UpdatedAt,
	}}, nil
}

func (s *Server) handleListChanges(ctx context.Context, input *sessionIDInput) (*listChangesOutput, error) {
	if s.engine == nil {
		return nil, huma.Error503ServiceUnavailable("agent engine not configured")
	}
	if s.store != nil {
		if _, err := s.store.GetSession(ctx, input.ID); err != nil {
			return nil, apiError(err)
		}
	}
	out := &listChangesOutput{}
	out.Body.Changes = s.engine.PendingChanges(input.ID)
	if out.Body.Changes == nil {
		out.Body.Changes = []*agent.PendingChange{}
	}
	return out, nil
}

func (s *Server) handleAcceptChange(ctx context.Context, input *changeIDInput) (*resolveChangeOutput, error) {
	return s.resolveChange(ctx, input, true)
}

func (s *Server) handleRejectChange(ctx context.Context, input *changeIDInput) (*resolveChangeOutput, error) {
	return s.resolveChange(ctx, input, false)
}

func (s *Server) resolveChange(ctx context.Context, input *changeIDInput, accept bool) (*resolveChangeOutput, error) {
	if s.engine == nil {
		return nil, huma.Error503ServiceUnavailable("agent engine not configured")
	}

	var err error
	outcome := agent.OutcomeRejected
	if accept {
		outcome = agent.OutcomeAccepted
		err = s.engine.Accept(ctx, input.ID, input.ChangeID)
	} else {
		err = s.engine.Reject(ctx, input.ID, input.ChangeID)
	}
	if err != nil {
		return nil, apiError(err)
	}

	out := &resolveChangeOutput{}
	out.Body.ChangeID = input.ChangeID
	out.Body.Outcome = outcome
	return out, nil
}

func (s *Server) handleCancel(ctx context.Context, input *sessionIDInput) (*cancelOutput, error) {
	if s.engine == nil {
		return nil, huma.Error503ServiceUnavailable("agent engine not configured")
	}
	if s.store != nil {
		if _, err := s.store.GetSession(ctx, input.ID); err != nil {
			return nil, apiError(err)
		}
	}
	if err := s.engine.Cancel(input.ID); err != nil {
		return nil, apiError(err)
	}
	out := &cancelOutput{}
	out.Body.Cancelled = true
	return out, nil
}

// --- Conversions and error mapping ---

func (s *Server) sessionBody(sess *store.Session) SessionBody {
	body := SessionBody{
		ID:        sess.ID,
		DraftID:   sess.DraftID,
		Status:    string(sess.Status),
		Model:     sess.ModelOverride,
		Summary:   sess.Summary,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if s.engine != nil {
		body.Phase = string(s.engine.Phase(sess.ID))
	}
	return body
}

func messageBody(msg *store.Message) MessageBody {
	return MessageBody{
		ID:         msg.ID,
		Role:       string(msg.Role),
		Content:    msg.Content,
		Reasoning:  msg.Reasoning,
		Status:     string(msg.Status),
		ToolCalls:  msg.ToolCalls,
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		Usage:      msg.Usage,
		CreatedAt:  msg.CreatedAt,
	}
}

// errStatus maps a domain error to an HTTP status. Store sentinels and
// coded errors both land on the right one.
func errStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return inkerr.HTTPStatus(err)
}

// apiError wraps a domain error as the matching huma status error.
func apiError(err error) error {
	return huma.NewError(errStatus(err), err.Error())
}

// writeProblem writes a huma-style error body on raw http routes.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
