package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rituo/rituo/internal/chat"
	"github.com/rituo/rituo/internal/session"
	"github.com/rituo/rituo/internal/store"
)

// ChatHandlers serves the /api/ai and /api/chat endpoints.
type ChatHandlers struct {
	orchestrator *chat.Orchestrator
	logger       *slog.Logger
}

// NewChatHandlers creates the chat endpoint handlers.
func NewChatHandlers(orchestrator *chat.Orchestrator, logger *slog.Logger) *ChatHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandlers{orchestrator: orchestrator, logger: logger}
}

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// SendMessage handles POST /api/ai/chat: one full orchestrated turn. A
// missing chat_id starts a fresh chat session owned by the caller.
func (h *ChatHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "message is required"})
		return
	}

	chatID := req.ChatID
	if chatID == "" {
		created, err := h.orchestrator.CreateChat(r.Context(), principal.UserID, "")
		if err != nil {
			writeError(w, err)
			return
		}
		chatID = created.ID
	}

	result, err := h.orchestrator.RunTurn(r.Context(), principal.UserID, chatID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Reply,
		ChatID:    result.ChatID,
		MessageID: result.MessageID,
	})
}

type chatSessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type chatMessageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionView(c *store.ChatSession) chatSessionView {
	return chatSessionView{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

// CreateSession handles POST /api/chat/sessions.
func (h *ChatHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	// An empty body starts an untitled chat
	_ = json.NewDecoder(r.Body).Decode(&body)

	created, err := h.orchestrator.CreateChat(r.Context(), principal.UserID, body.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(created))
}

// ListSessions handles GET /api/chat/sessions.
func (h *ChatHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}

	chats, err := h.orchestrator.ListChats(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]chatSessionView, len(chats))
	for i, c := range chats {
		views[i] = sessionView(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// GetSession handles GET /api/chat/sessions/{id}: the session plus its
// full transcript. Foreign sessions are indistinguishable from missing ones.
func (h *ChatHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}

	chatID := chi.URLParam(r, "id")
	chatSession, messages, err := h.orchestrator.History(r.Context(), principal.UserID, chatID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]chatMessageView, len(messages))
	for i, m := range messages {
		views[i] = chatMessageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sessionView(chatSession),
		"messages": views,
	})
}
