package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/rituo/rituo/internal/identity"
)

// MemoryStore implements Repository with in-process maps. It is the default
// backend for development and tests.
//
// All single-use semantics are enforced under the write lock, so concurrent
// consumers of the same token observe exactly one success.
type MemoryStore struct {
	mu sync.RWMutex

	identities     map[string]*identity.Identity // keyed by application id
	identitiesByGD map[string]string             // google id -> application id
	sessions       map[string]*Session
	refreshTokens  map[string]*RefreshToken
	grants         map[string]*Grant
	googleTokens   map[string]*oauth2.Token
	chats          map[string]*ChatSession
	messages       map[string][]*ChatMessage // chat id -> ordered messages
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		identities:     make(map[string]*identity.Identity),
		identitiesByGD: make(map[string]string),
		sessions:       make(map[string]*Session),
		refreshTokens:  make(map[string]*RefreshToken),
		grants:         make(map[string]*Grant),
		googleTokens:   make(map[string]*oauth2.Token),
		chats:          make(map[string]*ChatSession),
		messages:       make(map[string][]*ChatMessage),
	}
}

var _ Repository = (*MemoryStore)(nil)

func (m *MemoryStore) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (m *MemoryStore) GetIdentityByGoogleID(ctx context.Context, googleID string) (*identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identitiesByGD[googleID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.identities[id]
	return &cp, nil
}

func (m *MemoryStore) UpsertIdentity(ctx context.Context, ident *identity.Identity) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.identitiesByGD[ident.GoogleID]; ok {
		existing := m.identities[id]
		existing.Email = ident.Email
		existing.Name = ident.Name
		existing.Picture = ident.Picture
		existing.LastLoginAt = ident.LastLoginAt
		cp := *existing
		return &cp, nil
	}

	stored := *ident
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.identities[stored.ID] = &stored
	m.identitiesByGD[stored.GoogleID] = stored.ID
	cp := stored
	return &cp, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (m *MemoryStore) RevokeSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.RevokedAt == nil {
		session.RevokedAt = &at
	}
	return nil
}

func (m *MemoryStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

func (m *MemoryStore) ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	// Delete immediately so the token cannot be consumed twice
	delete(m.refreshTokens, token)
	cp := *rt
	return &cp, nil
}

func (m *MemoryStore) DeleteSessionRefreshTokens(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tok, rt := range m.refreshTokens {
		if rt.SessionID == sessionID {
			delete(m.refreshTokens, tok)
		}
	}
	return nil
}

func (m *MemoryStore) SaveGrant(ctx context.Context, grant *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *grant
	m.grants[grant.Token] = &cp
	return nil
}

func (m *MemoryStore) ConsumeGrant(ctx context.Context, token string) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, ok := m.grants[token]
	if !ok {
		return nil, ErrNotFound
	}
	// Delete immediately so the grant cannot be redeemed twice
	delete(m.grants, token)
	cp := *grant
	return &cp, nil
}

func (m *MemoryStore) SaveGoogleToken(ctx context.Context, userID string, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *token
	m.googleTokens[userID] = &cp
	return nil
}

func (m *MemoryStore) GetGoogleToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.googleTokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (m *MemoryStore) CreateChatSession(ctx context.Context, chat *ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *chat
	m.chats[chat.ID] = &cp
	return nil
}

func (m *MemoryStore) GetChatSession(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *chat
	return &cp, nil
}

func (m *MemoryStore) ListChatSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ChatSession
	for _, chat := range m.chats {
		if chat.UserID == userID {
			cp := *chat
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) AppendChatMessage(ctx context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[msg.ChatID]; !ok {
		return ErrNotFound
	}
	cp := *msg
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], &cp)
	m.chats[msg.ChatID].UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryStore) ListChatMessages(ctx context.Context, chatID string, limit int) ([]*ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*ChatMessage, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

func (m *MemoryStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for tok, grant := range m.grants {
		if now.After(grant.ExpiresAt) {
			delete(m.grants, tok)
			removed++
		}
	}
	for tok, rt := range m.refreshTokens {
		if now.After(rt.ExpiresAt) {
			delete(m.refreshTokens, tok)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
