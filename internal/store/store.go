// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/rituo/rituo/internal/identity"
)

// ErrNotFound is returned when a requested record does not exist.
// Single-use records (grants, refresh tokens) also return ErrNotFound on
// second consumption.
var ErrNotFound = errors.New("store: not found")

// Session is an issued application session. Access tokens reference a session
// by id so that revocation takes effect before the token expires.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// RefreshToken is a single-use opaque token bound to a session. Consuming it
// during refresh invalidates it; the manager then stores a successor.
type RefreshToken struct {
	Token     string
	SessionID string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Grant is a pending, single-use authorization artifact produced by the
// server-side OAuth callback and redeemed once by the frontend.
type Grant struct {
	Token       string
	GoogleID    string
	Email       string
	Name        string
	Picture     string
	GoogleToken *oauth2.Token
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the grant's redemption window has passed.
func (g *Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// ChatSession is a persisted conversation between a user and the assistant.
type ChatSession struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one entry in a chat session transcript.
type ChatMessage struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Repository defines the interface for persisting identities, sessions,
// grants, Google tokens, and chat transcripts.
//
// Implementations must make the Consume* operations atomic: concurrent
// consumers of the same token observe exactly one success, all others
// receive ErrNotFound.
type Repository interface {
	// GetIdentity retrieves an identity by application id.
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)

	// GetIdentityByGoogleID retrieves an identity by Google subject.
	GetIdentityByGoogleID(ctx context.Context, googleID string) (*identity.Identity, error)

	// UpsertIdentity creates or updates an identity keyed by Google subject.
	// On update, name, picture, email, and last login are refreshed while the
	// application id and creation time are preserved. The stored identity is
	// returned.
	UpsertIdentity(ctx context.Context, ident *identity.Identity) (*identity.Identity, error)

	// CreateSession records a newly issued session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, id string) (*Session, error)

	// RevokeSession marks a session revoked at the given time. Revoking an
	// already revoked session is a no-op.
	RevokeSession(ctx context.Context, id string, at time.Time) error

	// SaveRefreshToken stores a refresh token.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// ConsumeRefreshToken atomically removes and returns a refresh token.
	// A token can be consumed exactly once; later calls return ErrNotFound.
	ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// DeleteSessionRefreshTokens removes all refresh tokens for a session.
	DeleteSessionRefreshTokens(ctx context.Context, sessionID string) error

	// SaveGrant stores a pending auth grant.
	SaveGrant(ctx context.Context, grant *Grant) error

	// ConsumeGrant atomically removes and returns a grant. A grant can be
	// consumed exactly once; later calls return ErrNotFound.
	ConsumeGrant(ctx context.Context, token string) (*Grant, error)

	// SaveGoogleToken stores the Google OAuth token for a user, replacing any
	// previous token.
	SaveGoogleToken(ctx context.Context, userID string, token *oauth2.Token) error

	// GetGoogleToken retrieves the Google OAuth token for a user.
	GetGoogleToken(ctx context.Context, userID string) (*oauth2.Token, error)

	// CreateChatSession records a new chat session.
	CreateChatSession(ctx context.Context, chat *ChatSession) error

	// GetChatSession retrieves a chat session by id.
	GetChatSession(ctx context.Context, id string) (*ChatSession, error)

	// ListChatSessions lists a user's chat sessions, most recently updated first.
	ListChatSessions(ctx context.Context, userID string) ([]*ChatSession, error)

	// AppendChatMessage appends a message to a chat session transcript and
	// bumps the session's updated time.
	AppendChatMessage(ctx context.Context, msg *ChatMessage) error

	// ListChatMessages returns the last limit messages of a chat session in
	// chronological order. limit <= 0 returns all messages.
	ListChatMessages(ctx context.Context, chatID string, limit int) ([]*ChatMessage, error)

	// CleanupExpired removes expired grants and refresh tokens. Returns the
	// number of records removed.
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
