package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rituo/rituo/internal/auth"
	"github.com/rituo/rituo/internal/chat"
	"github.com/rituo/rituo/internal/session"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the package error taxonomies onto JSON error responses.
// Unrecognized errors become opaque 500s so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		writeJSON(w, authErr.Status, errorBody{Detail: authErr.Description, Code: authErr.Code})
		return
	}

	var sessErr *session.SessionError
	if errors.As(err, &sessErr) {
		writeJSON(w, sessErr.Status, errorBody{Detail: sessErr.Description, Code: sessErr.Code})
		return
	}

	var chatErr *chat.ChatError
	if errors.As(err, &chatErr) {
		writeJSON(w, chatErr.Status, errorBody{Detail: chatErr.Description, Code: chatErr.Code})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
}
