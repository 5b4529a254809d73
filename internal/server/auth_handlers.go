package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rituo/rituo/internal/auth"
	"github.com/rituo/rituo/internal/google"
	"github.com/rituo/rituo/internal/identity"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/session"
	"github.com/rituo/rituo/internal/store"
)

// AuthHandlers serves the /api/auth endpoints.
type AuthHandlers struct {
	exchanger   *auth.Exchanger
	sessions    *session.Manager
	repo        store.Repository
	clientID    string
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandlers creates the auth endpoint handlers.
func NewAuthHandlers(exchanger *auth.Exchanger, sessions *session.Manager, repo store.Repository, clientID, frontendURL string, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		exchanger:   exchanger,
		sessions:    sessions,
		repo:        repo,
		clientID:    clientID,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// loginResponse is the body of a successful credential exchange.
type loginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	User         identity.Profile `json:"user"`
}

// Login handles POST /api/auth/google. The body carries exactly one Google
// artifact; a verified exchange mints an application session.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var artifact auth.Artifact
	if err := json.NewDecoder(r.Body).Decode(&artifact); err != nil {
		writeError(w, auth.ErrInvalidCredential("request body is not valid JSON"))
		return
	}

	ident, err := h.exchanger.Exchange(r.Context(), artifact)
	if err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.sessions.Issue(r.Context(), ident.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("login succeeded", logging.UserHash(ident.Email))
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User:         ident.Profile(),
	})
}

// GoogleConfig handles GET /api/auth/google-config. It exposes the public
// client id and scope catalog plus a fresh anti-forgery state; the client
// secret never leaves the server.
func (h *AuthHandlers) GoogleConfig(w http.ResponseWriter, r *http.Request) {
	state, err := h.exchanger.BeginFlow()
	if err != nil {
		writeError(w, auth.ErrServerError("could not start authorization flow"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": h.clientID,
		"scopes":    google.DefaultOAuthScopes,
		"state":     state,
	})
}

// Check handles GET /api/auth/check. It always answers 200 with a boolean
// so frontends can probe without handling auth errors.
func (h *AuthHandlers) Check(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if token, ok := bearerToken(r); ok {
		if _, err := h.sessions.Validate(r.Context(), token); err == nil {
			authenticated = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}

// Refresh handles POST /api/auth/refresh. The presented refresh token is
// consumed and a rotated pair returned.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, session.ErrRefreshInvalid("refresh_token is required"))
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Me handles GET /api/auth/me for an authenticated caller.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}
	ident, err := h.repo.GetIdentity(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, session.ErrSessionInvalid("session user no longer exists"))
		return
	}
	writeJSON(w, http.StatusOK, ident.Profile())
}

// Logout handles POST /api/auth/logout. Logout is idempotent: revoking an
// already revoked or unknown session still answers 204.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, session.ErrSessionInvalid("no session"))
		return
	}
	if err := h.sessions.Revoke(r.Context(), principal.SessionID); err != nil {
		h.logger.Debug("logout revocation failed", logging.Err(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Callback handles the server-side OAuth redirect from Google. On success
// the browser is sent back to the frontend carrying a single-use temporary
// token; on failure it carries an error code instead.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	target, err := url.Parse(h.frontendURL)
	if err != nil {
		writeError(w, auth.ErrServerError("frontend URL is misconfigured"))
		return
	}
	target.Path = "/auth/callback"

	query := url.Values{}
	if code == "" || state == "" {
		query.Set("error", "invalid_credential")
	} else if token, err := h.exchanger.HandleCallback(r.Context(), code, state); err != nil {
		h.logger.Warn("oauth callback failed", logging.Err(err))
		query.Set("error", errorCode(err))
	} else {
		query.Set("token", token)
	}
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// errorCode extracts the stable taxonomy code for redirect query strings.
func errorCode(err error) string {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return "server_error"
}
