package session

import (
	"fmt"
	"net/http"
)

// SessionError represents a session validation or refresh failure.
type SessionError struct {
	Code        string // Stable error code (e.g. "session_expired")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewSessionError creates a new session error
func NewSessionError(code, description string, status int) *SessionError {
	return &SessionError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Session failure modes as reusable constructors
var (
	// ErrSessionExpired indicates the access token or its session outlived its lifetime
	ErrSessionExpired = func(desc string) *SessionError {
		return NewSessionError("session_expired", desc, http.StatusUnauthorized)
	}

	// ErrSessionRevoked indicates the session was explicitly revoked
	ErrSessionRevoked = func(desc string) *SessionError {
		return NewSessionError("session_revoked", desc, http.StatusUnauthorized)
	}

	// ErrSessionInvalid indicates the access token is malformed or unverifiable
	ErrSessionInvalid = func(desc string) *SessionError {
		return NewSessionError("session_invalid", desc, http.StatusUnauthorized)
	}

	// ErrRefreshInvalid indicates the refresh token is unknown or already rotated
	ErrRefreshInvalid = func(desc string) *SessionError {
		return NewSessionError("refresh_invalid", desc, http.StatusUnauthorized)
	}

	// ErrRefreshExpired indicates the refresh token's lifetime has passed
	ErrRefreshExpired = func(desc string) *SessionError {
		return NewSessionError("refresh_expired", desc, http.StatusUnauthorized)
	}

	// ErrServerError indicates an internal failure during session handling
	ErrServerError = func(desc string) *SessionError {
		return NewSessionError("server_error", desc, http.StatusInternalServerError)
	}
)
