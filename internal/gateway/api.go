// ABOUTME: HTTP API handlers for session lifecycle and streaming chat
// ABOUTME: Chat turns stream to clients as SSE; errors carry stable kinds

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/raonhq/interview-gateway/internal/auth"
	"github.com/raonhq/interview-gateway/internal/chat"
	"github.com/raonhq/interview-gateway/internal/session"
	"github.com/raonhq/interview-gateway/internal/store"
)

// CreateSessionRequest is the JSON request body for POST /api/sessions/create.
type CreateSessionRequest struct {
	UserID                 string           `json:"userId,omitempty"`
	ChatbotID              string           `json:"chatbotId"`
	Overrides              SessionOverrides `json:"overrides"`
	PreviousConversationID string           `json:"previousConversationId,omitempty"`
}

// SessionOverrides are caller-supplied settings that win over bot defaults.
type SessionOverrides struct {
	LLMType    string `json:"llmType,omitempty"`
	TTSType    string `json:"ttsType,omitempty"`
	STTType    string `json:"sttType,omitempty"`
	ModelStyle string `json:"modelStyle,omitempty"`
	PromptID   string `json:"promptId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// CreateSessionResponse is the JSON response for POST /api/sessions/create.
type CreateSessionResponse struct {
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
	CreatedAt      string `json:"createdAt"`
	Status         string `json:"status"`
	LLMType        string `json:"llmType,omitempty"`
	TTSType        string `json:"ttsType,omitempty"`
	ModelStyle     string `json:"modelStyle,omitempty"`
}

// ChatMessageRequest is the JSON request body for the chat endpoints.
type ChatMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// SimpleChatResponse is the JSON response for POST /api/chat/message/simple.
type SimpleChatResponse struct {
	Message   string `json:"message,omitempty"`
	Role      string `json:"role,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// HistoryMessage is one message in GET /api/chat/history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// RoomResponse is one conversation in GET /api/chat/rooms responses.
type RoomResponse struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title,omitempty"`
	Status         string `json:"status"`
	BotID          string `json:"botId,omitempty"`
	CreatedAt      string `json:"createdAt"`
	LastMessageAt  string `json:"lastMessageAt,omitempty"`
}

// BotResponse is one bot in GET /api/bots responses.
type BotResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LLMType     string `json:"llmType,omitempty"`
	ModelStyle  string `json:"modelStyle,omitempty"`
}

// handleCreateSession handles POST /api/sessions/create. The session belongs
// to the authenticated caller; a body userId naming someone else is rejected.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity := auth.UserFromContext(r.Context())

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.ChatbotID == "" {
		g.writeError(w, http.StatusBadRequest, "bad_request", "chatbotId is required")
		return
	}
	if req.UserID != "" && req.UserID != identity.UserID {
		g.writeError(w, http.StatusForbidden, "forbidden", "cannot create a session for another user")
		return
	}

	res, err := g.sessions.CreateSession(r.Context(), &session.CreateRequest{
		UserID: identity.UserID,
		BotID:  req.ChatbotID,
		Overrides: session.Overrides{
			LLMType:    req.Overrides.LLMType,
			TTSType:    req.Overrides.TTSType,
			STTType:    req.Overrides.STTType,
			ModelStyle: req.Overrides.ModelStyle,
			PromptID:   req.Overrides.PromptID,
			DocumentID: req.Overrides.DocumentID,
		},
		PreviousConversationID: req.PreviousConversationID,
	})
	if err != nil {
		g.writeTaxonomyError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, CreateSessionResponse{
		SessionID:      res.SessionID,
		ConversationID: res.ConversationID,
		CreatedAt:      res.CreatedAt.Format(time.RFC3339),
		Status:         string(res.Status),
		LLMType:        res.Config.LLMType,
		TTSType:        res.Config.TTSType,
		ModelStyle:     res.Config.ModelStyle,
	})
}

// handleSessionRoutes dispatches /api/chat/session/{sessionId} and
// /api/chat/session/{sessionId}/start.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/session/")
	if rest == "" || rest == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if sessionID, ok := strings.CutSuffix(rest, "/start"); ok {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleStartSession(w, r, sessionID)
		return
	}

	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.handleEndSession(w, r, rest)
}

// handleStartSession handles POST /api/chat/session/{sessionId}/start.
func (g *Gateway) handleStartSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conv, ok := g.resolveOwnedSession(w, r, sessionID)
	if !ok {
		return
	}
	if err := g.sessions.StartSession(r.Context(), conv.ID); err != nil {
		g.writeTaxonomyError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleEndSession handles DELETE /api/chat/session/{sessionId}.
func (g *Gateway) handleEndSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conv, ok := g.resolveOwnedSession(w, r, sessionID)
	if !ok {
		return
	}
	if err := g.sessions.EndSession(r.Context(), conv.ID); err != nil {
		g.writeTaxonomyError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleChatMessage handles POST /api/chat/message and streams the turn as
// SSE: "message" events per fragment, then a terminal "done" or "error".
func (g *Gateway) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, conv, ok := g.parseChatRequest(w, r)
	if !ok {
		return
	}

	flusher, flusherOK := w.(http.Flusher)
	if !flusherOK {
		g.logger.Error("streaming not supported")
		g.writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	res, err := g.chat.StreamTurn(r.Context(), &chat.TurnRequest{
		ConversationID: conv.ID,
		Content:        req.Message,
	})
	if err != nil {
		g.writeTaxonomyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "started", map[string]string{"conversationId": conv.ID})
	flusher.Flush()

	for ev := range res.Stream {
		switch ev.Type {
		case chat.EventText:
			g.writeSSEEvent(w, "message", map[string]string{"text": ev.Text})
		case chat.EventError:
			g.writeSSEEvent(w, "error", errorPayload(ev.Err))
		case chat.EventDone:
			g.writeSSEEvent(w, "done", map[string]string{
				"message":   ev.Text,
				"messageId": ev.MessageID,
			})
		}
		flusher.Flush()
	}
}

// handleChatMessageSimple handles POST /api/chat/message/simple, the
// non-streaming variant that waits for the full reply.
func (g *Gateway) handleChatMessageSimple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, conv, ok := g.parseChatRequest(w, r)
	if !ok {
		return
	}

	reply, err := g.chat.CompleteTurn(r.Context(), &chat.TurnRequest{
		ConversationID: conv.ID,
		Content:        req.Message,
	})
	if err != nil {
		status := statusForKind(session.KindOf(err))
		g.writeJSON(w, status, SimpleChatResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	g.writeJSON(w, http.StatusOK, SimpleChatResponse{
		Message:   reply.Content,
		Role:      reply.Role,
		Timestamp: reply.CreatedAt.Format(time.RFC3339),
		Success:   true,
	})
}

// handleHistory handles GET /api/chat/history/{conversationId}. With
// ?format=html, message content is rendered from markdown.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/api/chat/history/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	identity := auth.UserFromContext(r.Context())
	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		g.writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load conversation", "error", err)
		g.writeError(w, http.StatusInternalServerError, "persistence", "internal server error")
		return
	}
	if conv.UserID != identity.UserID {
		g.writeError(w, http.StatusForbidden, "forbidden", "not your conversation")
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), conversationID, 0)
	if err != nil {
		g.logger.Error("failed to list messages", "error", err)
		g.writeError(w, http.StatusInternalServerError, "persistence", "internal server error")
		return
	}

	renderHTML := r.URL.Query().Get("format") == "html"
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if renderHTML {
			rendered, err := renderMarkdown(content)
			if err != nil {
				g.logger.Warn("markdown render failed", "error", err, "message_id", m.ID)
			} else {
				content = rendered
			}
		}
		out = append(out, HistoryMessage{
			Role:      m.Role,
			Content:   content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": conversationID,
		"messages":       out,
	})
}

// handleRooms handles GET /api/chat/rooms. Lists the caller's conversations;
// a userId query naming someone else is rejected.
func (g *Gateway) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := auth.UserFromContext(r.Context())
	if q := r.URL.Query().Get("userId"); q != "" && q != identity.UserID {
		g.writeError(w, http.StatusForbidden, "forbidden", "cannot list another user's conversations")
		return
	}

	convs, err := g.store.ListConversationsByUser(r.Context(), identity.UserID)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.writeError(w, http.StatusInternalServerError, "persistence", "internal server error")
		return
	}

	rooms := make([]RoomResponse, 0, len(convs))
	for _, c := range convs {
		room := RoomResponse{
			ConversationID: c.ID,
			Title:          c.Title,
			Status:         string(c.Status),
			BotID:          c.BotID,
			CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		}
		if c.LastMessageAt != nil {
			room.LastMessageAt = c.LastMessageAt.Format(time.RFC3339)
		}
		rooms = append(rooms, room)
	}

	g.writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// handleListBots handles GET /api/bots, listing active bot configurations.
func (g *Gateway) handleListBots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	list, err := g.store.ListBots(r.Context(), true)
	if err != nil {
		g.logger.Error("failed to list bots", "error", err)
		g.writeError(w, http.StatusInternalServerError, "persistence", "internal server error")
		return
	}

	out := make([]BotResponse, 0, len(list))
	for _, b := range list {
		out = append(out, BotResponse{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			LLMType:     b.LLMType,
			ModelStyle:  b.ModelStyle,
		})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"bots": out})
}

// handleCatalog handles GET /api/catalog/{prompts|documents|modelstyles|aimodels},
// proxying the platform catalog through the TTL cache.
func (g *Gateway) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload any
	var err error
	switch strings.TrimPrefix(r.URL.Path, "/api/catalog/") {
	case "prompts":
		payload, err = g.catalog.Prompts(r.Context())
	case "documents":
		payload, err = g.catalog.Documents(r.Context())
	case "modelstyles":
		payload, err = g.catalog.ModelStyles(r.Context())
	case "aimodels":
		payload, err = g.catalog.AIModels(r.Context())
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		g.logger.Error("catalog fetch failed", "error", err)
		g.writeError(w, http.StatusBadGateway, "upstream", "catalog unavailable")
		return
	}
	g.writeJSON(w, http.StatusOK, payload)
}

// parseChatRequest decodes a chat body and resolves the caller's conversation
// for it. Writes the error response itself when ok is false.
func (g *Gateway) parseChatRequest(w http.ResponseWriter, r *http.Request) (*ChatMessageRequest, *store.Conversation, bool) {
	req, err := decodeChatRequest(r.Body)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return nil, nil, false
	}

	conv, ok := g.resolveOwnedSession(w, r, req.SessionID)
	if !ok {
		return nil, nil, false
	}
	return req, conv, true
}

// resolveOwnedSession maps a remote session id to the caller's conversation.
// Writes the error response itself when ok is false.
func (g *Gateway) resolveOwnedSession(w http.ResponseWriter, r *http.Request, sessionID string) (*store.Conversation, bool) {
	identity := auth.UserFromContext(r.Context())
	conv, err := g.sessions.ResolveActiveSession(r.Context(), sessionID)
	if err != nil {
		g.writeTaxonomyError(w, err)
		return nil, false
	}
	if conv.UserID != identity.UserID {
		g.writeError(w, http.StatusForbidden, "forbidden", "not your session")
		return nil, false
	}
	return conv, true
}

// decodeChatRequest parses and validates a ChatMessageRequest.
func decodeChatRequest(r io.Reader) (*ChatMessageRequest, error) {
	var req ChatMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.SessionID == "" {
		return nil, errors.New("sessionId is required")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// renderMarkdown converts markdown content to HTML.
func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// statusForKind maps taxonomy kinds to HTTP status codes.
func statusForKind(kind session.Kind) int {
	switch kind {
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindPersistence:
		return http.StatusInternalServerError
	case session.KindSessionCreation, session.KindUpstream, session.KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorPayload is the wire shape for taxonomy errors.
func errorPayload(err error) map[string]any {
	msg := "internal error"
	var taxErr *session.Error
	if errors.As(err, &taxErr) {
		msg = taxErr.Message
	} else if err != nil {
		msg = err.Error()
	}
	return map[string]any{
		"error": map[string]string{
			"kind":    string(session.KindOf(err)),
			"message": msg,
		},
	}
}

// writeTaxonomyError writes a taxonomy error as JSON with the mapped status.
func (g *Gateway) writeTaxonomyError(w http.ResponseWriter, err error) {
	status := statusForKind(session.KindOf(err))
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
	}
	g.writeJSON(w, status, errorPayload(err))
}

// writeError writes a JSON error response with an explicit kind.
func (g *Gateway) writeError(w http.ResponseWriter, status int, kind, message string) {
	g.writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
