package auth

import (
	"fmt"
	"net/http"
)

// AuthError represents a credential exchange failure returned to clients.
type AuthError struct {
	Code        string // Stable error code (e.g. "invalid_credential")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewAuthError creates a new auth error
func NewAuthError(code, description string, status int) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Exchange failure modes as reusable constructors
var (
	// ErrInvalidCredential indicates the presented artifact could not be verified
	ErrInvalidCredential = func(desc string) *AuthError {
		return NewAuthError("invalid_credential", desc, http.StatusUnauthorized)
	}

	// ErrCredentialExpired indicates the signed credential was valid but its lifetime has passed
	ErrCredentialExpired = func(desc string) *AuthError {
		return NewAuthError("credential_expired", desc, http.StatusUnauthorized)
	}

	// ErrExpiredGrant indicates the temporary token was already redeemed or outlived its window
	ErrExpiredGrant = func(desc string) *AuthError {
		return NewAuthError("expired_grant", desc, http.StatusUnauthorized)
	}

	// ErrStateMismatch indicates the anti-forgery state did not match an outstanding flow
	ErrStateMismatch = func(desc string) *AuthError {
		return NewAuthError("state_mismatch", desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal failure during the exchange
	ErrServerError = func(desc string) *AuthError {
		return NewAuthError("server_error", desc, http.StatusInternalServerError)
	}
)
