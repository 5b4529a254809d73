// Package session issues and validates application sessions: short-lived
// signed access tokens paired with single-use rotating refresh tokens.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rituo/rituo/internal/auth"
	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/store"
)

// Session lifetimes and token sizes.
const (
	// DefaultAccessTokenTTL is the lifetime of a signed access token.
	DefaultAccessTokenTTL = 60 * time.Minute

	// DefaultRefreshTokenTTL bounds the whole session: each rotation extends
	// access, but never past the refresh horizon of the latest token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// RefreshTokenLength is the byte length of refresh token secrets.
	RefreshTokenLength = 48
)

// TokenPair is the result of issuing or refreshing a session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Principal is the authenticated caller resolved from a valid access token.
type Principal struct {
	UserID    string
	SessionID string
}

// Manager issues, validates, refreshes, and revokes sessions.
//
// Refresh tokens are single use: consuming one is atomic at the store layer,
// so concurrent refreshes of the same token produce exactly one winner. The
// losers observe the token as unknown.
type Manager struct {
	repo       store.Repository
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches session metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(mgr *Manager) { mgr.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(mgr *Manager) { mgr.refreshTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// NewManager creates a session manager signing tokens with the given secret.
func NewManager(repo store.Repository, secret []byte, issuer string, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:       repo,
		secret:     secret,
		issuer:     issuer,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		logger:     logging.WithOperation(logger, "session"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a new session for the user and returns its token pair.
func (m *Manager) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	now := m.now()
	session := &store.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, ErrServerError("failed to create session")
	}

	pair, err := m.mint(ctx, session.ID, userID, now)
	if err != nil {
		return nil, err
	}

	m.metrics.IncrementActiveSessions(ctx)
	m.logger.Info("session issued", "session_id", session.ID)
	return pair, nil
}

// Validate resolves an access token into its principal. The backing session
// is consulted so revocation takes effect before the token expires.
func (m *Manager) Validate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := parseAccessToken(m.secret, accessToken, m.now)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired("access token has expired")
		}
		return nil, ErrSessionInvalid("access token could not be verified")
	}

	session, err := m.repo.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionInvalid("session is unknown")
		}
		return nil, ErrServerError("session lookup failed")
	}
	if session.Revoked() {
		return nil, ErrSessionRevoked("session has been revoked")
	}
	if m.now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired("session has expired")
	}

	return &Principal{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}

// Refresh rotates a refresh token: the presented token is consumed, and a
// fresh pair bound to the same session is returned. Of concurrent refreshes
// with the same token exactly one succeeds.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rt, err := m.repo.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.metrics.RecordSessionRefresh(ctx, instrumentation.AuthResultFailure)
			return nil, ErrRefreshInvalid("refresh token is unknown or already rotated")
		}
		return nil, ErrServerError("refresh token lookup failed")
	}

	now := m.now()
	if now.After(rt.ExpiresAt) {
		m.metrics.RecordSessionRefresh(ctx, instrumentation.AuthResultExpired)
		return nil, ErrRefreshExpired("refresh token has expired")
	}

	session, err := m.repo.GetSession(ctx, rt.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.metrics.RecordSessionRefresh(ctx, instrumentation.AuthResultFailure)
			return nil, ErrRefreshInvalid("session behind refresh token is unknown")
		}
		return nil, ErrServerError("session lookup failed")
	}
	if session.Revoked() {
		m.metrics.RecordSessionRefresh(ctx, instrumentation.AuthResultFailure)
		return nil, ErrSessionRevoked("session has been revoked")
	}

	pair, err := m.mint(ctx, session.ID, session.UserID, now)
	if err != nil {
		return nil, err
	}

	m.metrics.RecordSessionRefresh(ctx, instrumentation.AuthResultSuccess)
	m.logger.Debug("session refreshed", "session_id", session.ID)
	return pair, nil
}

// Revoke marks the session revoked and removes its outstanding refresh
// tokens. Existing access tokens fail validation from this point on.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if err := m.repo.RevokeSession(ctx, sessionID, m.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionInvalid("session is unknown")
		}
		return ErrServerError("session revocation failed")
	}
	if err := m.repo.DeleteSessionRefreshTokens(ctx, sessionID); err != nil {
		return ErrServerError("refresh token cleanup failed")
	}

	m.metrics.DecrementActiveSessions(ctx)
	m.logger.Info("session revoked", "session_id", sessionID)
	return nil
}

// mint signs an access token and stores a fresh refresh token for the session.
func (m *Manager) mint(ctx context.Context, sessionID, userID string, now time.Time) (*TokenPair, error) {
	accessToken, err := signAccessToken(m.secret, m.issuer, userID, sessionID, now, m.accessTTL)
	if err != nil {
		return nil, ErrServerError("failed to sign access token")
	}

	refreshToken, err := auth.GenerateToken(RefreshTokenLength)
	if err != nil {
		return nil, ErrServerError("failed to generate refresh token")
	}
	if err := m.repo.SaveRefreshToken(ctx, &store.RefreshToken{
		Token:     refreshToken,
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	}); err != nil {
		return nil, ErrServerError("failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}
