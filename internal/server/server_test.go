package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/rituo/rituo/internal/auth"
	"github.com/rituo/rituo/internal/chat"
	"github.com/rituo/rituo/internal/session"
	"github.com/rituo/rituo/internal/store"
	"github.com/rituo/rituo/internal/tools"
)

// fakeVerifier resolves canned credentials without talking to Google.
type fakeVerifier struct {
	tokens map[string]*auth.Claims
	codes  map[string]*auth.Claims
}

func (f *fakeVerifier) VerifyIDToken(_ context.Context, raw string) (*auth.Claims, error) {
	if claims, ok := f.tokens[raw]; ok {
		return claims, nil
	}
	return nil, assertErr("unknown token")
}

func (f *fakeVerifier) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if _, ok := f.codes[code]; ok {
		return &oauth2.Token{AccessToken: "ga-" + code, RefreshToken: "gr-" + code}, nil
	}
	return nil, assertErr("unknown code")
}

func (f *fakeVerifier) FetchUserInfo(_ context.Context, token *oauth2.Token) (*auth.Claims, error) {
	code := strings.TrimPrefix(token.AccessToken, "ga-")
	if claims, ok := f.codes[code]; ok {
		return claims, nil
	}
	return nil, assertErr("unknown google token")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// echoEngine replies with a fixed string and never calls tools.
type echoEngine struct {
	reply string
}

func (e *echoEngine) Complete(_ context.Context, _ []chat.Message, _ []chat.ToolSpec) (*chat.Completion, error) {
	return &chat.Completion{
		Message:      chat.Message{Role: chat.RoleAssistant, Content: e.reply},
		FinishReason: "stop",
	}, nil
}

func (e *echoEngine) ModelName() string { return "echo" }

// idleEndpoint is a tool endpoint with no tools.
type idleEndpoint struct{}

func (idleEndpoint) ListTools(context.Context) ([]tools.Descriptor, error) { return nil, nil }
func (idleEndpoint) CallTool(context.Context, string, map[string]any) (*tools.CallOutcome, error) {
	return &tools.CallOutcome{Content: ""}, nil
}
func (idleEndpoint) Close() error { return nil }

type noCreds struct{}

func (noCreds) AccessToken(context.Context, string) (string, error) {
	return "google-token", nil
}

type fixture struct {
	handler  http.Handler
	repo     *store.MemoryStore
	verifier *fakeVerifier
	states   *auth.StateStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := store.NewMemory()
	verifier := &fakeVerifier{
		tokens: map[string]*auth.Claims{
			"good-token": {Subject: "g-1", Email: "alice@example.com", Name: "Alice"},
		},
		codes: map[string]*auth.Claims{
			"good-code": {Subject: "g-2", Email: "bob@example.com", Name: "Bob"},
		},
	}
	states := auth.NewStateStore(nil)
	t.Cleanup(func() { states.Close() })

	exchanger := auth.NewExchanger(repo, verifier, states, nil)
	sessions := session.NewManager(repo, []byte("test-secret"), "rituo-test", nil)

	endpoint := idleEndpoint{}
	registry := tools.NewRegistry(endpoint, time.Hour, nil)
	router := tools.NewRouter(registry, endpoint, noCreds{}, nil)
	orchestrator := chat.NewOrchestrator(repo, &echoEngine{reply: "hello there"}, router, registry, nil)

	srv := New(
		Config{
			Addr:               ":0",
			FrontendURL:        "http://frontend.test",
			RateLimitPerSecond: 100,
			RateLimitBurst:     100,
		},
		Deps{
			Auth:     NewAuthHandlers(exchanger, sessions, repo, "client-id-123", "http://frontend.test", nil),
			Chat:     NewChatHandlers(orchestrator, nil),
			Sessions: sessions,
			Health:   NewHealthChecker(repo),
		},
		nil,
	)

	return &fixture{handler: srv.Handler(), repo: repo, verifier: verifier, states: states}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) loginResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{"credential": "good-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLogin_Credential(t *testing.T) {
	f := newFixture(t)

	resp := f.login(t)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "alice@example.com", resp.User.Email)
}

func TestLogin_InvalidCredential(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{"credential": "forged"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_credential", body.Code)
	assert.NotEmpty(t, body.Detail)
}

func TestLogin_AuthorizationCode(t *testing.T) {
	f := newFixture(t)

	state, err := f.states.Issue()
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{
		"authorization_code": "good-code",
		"state":              state,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bob@example.com", resp.User.Email)
}

func TestLogin_EmptyBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoogleConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/google-config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ClientID string   `json:"client_id"`
		Scopes   []string `json:"scopes"`
		State    string   `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "client-id-123", body.ClientID)
	assert.NotEmpty(t, body.Scopes)
	assert.NotEmpty(t, body.State)
}

func TestCheck(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated": false}`, rec.Body.String())

	login := f.login(t)
	rec = f.do(t, http.MethodGet, "/api/auth/check", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated": true}`, rec.Body.String())
}

func TestRefresh_Rotation(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	var pair session.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	// The consumed token no longer works
	rec = f.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "refresh_invalid", body.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, "Alice", profile.Name)
}

func TestMe_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/auth/logout", login.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Access token still parses but the session is revoked
	rec = f.do(t, http.MethodGet, "/api/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "session_revoked", body.Code)
}

func TestCallback_RedirectsWithTempToken(t *testing.T) {
	f := newFixture(t)

	state, err := f.states.Issue()
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/auth/google/callback?code=good-code&state="+state, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	require.Contains(t, location, "http://frontend.test/auth/callback?token=")

	// Redeem the temp token for a session
	token := location[strings.Index(location, "token=")+len("token="):]
	rec = f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{"temp_token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bob@example.com", resp.User.Email)

	// Replaying the consumed temp token fails with expired_grant
	rec = f.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{"temp_token": token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "expired_grant", body.Code)
}

func TestCallback_BadStateRedirectsWithError(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/google/callback?code=good-code&state=bogus", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "error=state_mismatch")
}

func TestChat_Turn(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/ai/chat", login.AccessToken, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello there", resp.Response)
	assert.NotEmpty(t, resp.ChatID)
	assert.NotEmpty(t, resp.MessageID)

	// A follow-up in the same chat reuses the session
	rec = f.do(t, http.MethodPost, "/api/ai/chat", login.AccessToken, map[string]string{
		"message": "again",
		"chat_id": resp.ChatID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, resp.ChatID, second.ChatID)
}

func TestChat_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ai/chat", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_MissingMessage(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/ai/chat", login.AccessToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSessions_CRUD(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/chat/sessions", login.AccessToken, map[string]string{"title": "Planning"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created chatSessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Planning", created.Title)

	rec = f.do(t, http.MethodGet, "/api/chat/sessions", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []chatSessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)

	rec = f.do(t, http.MethodGet, "/api/chat/sessions/"+created.ID, login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Session  chatSessionView   `json:"session"`
		Messages []chatMessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, created.ID, detail.Session.ID)
	assert.Empty(t, detail.Messages)
}

func TestChatSessions_UnknownID(t *testing.T) {
	f := newFixture(t)
	login := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/chat/sessions/nope", login.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestReadiness_NotReady(t *testing.T) {
	health := NewHealthChecker(nil)
	health.SetReady(false)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	health.ReadinessHandler()(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiter_Blocks(t *testing.T) {
	rl := NewRateLimiter(1, 2, false)
	defer rl.Close()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/check", nil)
	req.Header.Set("Origin", "http://frontend.test")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://frontend.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
