package chat

import (
	"fmt"
	"net/http"
)

// ChatError represents a conversation failure returned to clients.
type ChatError struct {
	Code        string // Stable error code (e.g. "chat_not_found")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *ChatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewChatError creates a new chat error
func NewChatError(code, description string, status int) *ChatError {
	return &ChatError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Conversation failure modes as reusable constructors
var (
	// ErrChatNotFound indicates the chat session does not exist or belongs
	// to another user
	ErrChatNotFound = func(desc string) *ChatError {
		return NewChatError("chat_not_found", desc, http.StatusNotFound)
	}

	// ErrTurnCancelled indicates the caller went away mid-turn
	ErrTurnCancelled = func(desc string) *ChatError {
		return NewChatError("turn_cancelled", desc, http.StatusRequestTimeout)
	}

	// ErrEngineUnavailable indicates the model could not be reached
	ErrEngineUnavailable = func(desc string) *ChatError {
		return NewChatError("engine_unavailable", desc, http.StatusBadGateway)
	}

	// ErrServerError indicates an internal failure during the turn
	ErrServerError = func(desc string) *ChatError {
		return NewChatError("server_error", desc, http.StatusInternalServerError)
	}
)
