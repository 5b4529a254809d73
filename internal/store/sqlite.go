package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/rituo/rituo/internal/identity"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; busy_timeout makes contending writers
	// queue instead of failing with SQLITE_BUSY. The _pragma form applies
	// to every pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

var _ Repository = (*SQLiteStore)(nil)

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		google_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		picture TEXT,
		created_at INTEGER NOT NULL,
		last_login_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		revoked_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_session ON refresh_tokens(session_id);
	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at);

	CREATE TABLE IF NOT EXISTS grants (
		token TEXT PRIMARY KEY,
		google_id TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		picture TEXT,
		google_token_json TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_grants_expires ON grants(expires_at);

	CREATE TABLE IF NOT EXISTS google_tokens (
		user_id TEXT PRIMARY KEY,
		token_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_chat ON chat_messages(chat_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	return s.getIdentity(ctx, "id", id)
}

func (s *SQLiteStore) GetIdentityByGoogleID(ctx context.Context, googleID string) (*identity.Identity, error) {
	return s.getIdentity(ctx, "google_id", googleID)
}

func (s *SQLiteStore) getIdentity(ctx context.Context, column, value string) (*identity.Identity, error) {
	query := `
		SELECT id, google_id, email, name, picture, created_at, last_login_at
		FROM identities WHERE ` + column + ` = ?`

	row := s.db.QueryRowContext(ctx, query, value)

	var ident identity.Identity
	var picture sql.NullString
	var createdAt, lastLogin int64

	err := row.Scan(&ident.ID, &ident.GoogleID, &ident.Email, &ident.Name, &picture, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity row: %w", err)
	}

	ident.Picture = picture.String
	ident.CreatedAt = time.Unix(createdAt, 0)
	ident.LastLoginAt = time.Unix(lastLogin, 0)

	return &ident, nil
}

func (s *SQLiteStore) UpsertIdentity(ctx context.Context, ident *identity.Identity) (*identity.Identity, error) {
	stored := *ident
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO identities (id, google_id, email, name, picture, created_at, last_login_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(google_id) DO UPDATE SET
		email = excluded.email,
		name = excluded.name,
		picture = excluded.picture,
		last_login_at = excluded.last_login_at`

	_, err := s.db.ExecContext(ctx, query,
		stored.ID, stored.GoogleID, stored.Email, stored.Name, nullable(stored.Picture),
		stored.CreatedAt.Unix(), stored.LastLoginAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}

	// Re-read so callers get the preserved id/created_at on update.
	return s.GetIdentityByGoogleID(ctx, stored.GoogleID)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
	INSERT INTO sessions (id, user_id, created_at, expires_at, revoked_at)
	VALUES (?, ?, ?, ?, NULL)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.CreatedAt.Unix(), session.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var session Session
	var createdAt, expiresAt int64
	var revokedAt sql.NullInt64

	err := row.Scan(&session.ID, &session.UserID, &createdAt, &expiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.ExpiresAt = time.Unix(expiresAt, 0)
	if revokedAt.Valid {
		t := time.Unix(revokedAt.Int64, 0)
		session.RevokedAt = &t
	}

	return &session, nil
}

func (s *SQLiteStore) RevokeSession(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`

	res, err := s.db.ExecContext(ctx, query, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	// Distinguish "unknown session" from "already revoked"
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	query := `
	INSERT INTO refresh_tokens (token, session_id, user_id, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		token.Token, token.SessionID, token.UserID,
		token.CreatedAt.Unix(), token.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	// Single DELETE ... RETURNING statement is the single-use gate: exactly
	// one concurrent consumer sees the row.
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = ?
		 RETURNING token, session_id, user_id, created_at, expires_at`,
		token,
	)

	var rt RefreshToken
	var createdAt, expiresAt int64
	err := row.Scan(&rt.Token, &rt.SessionID, &rt.UserID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	rt.CreatedAt = time.Unix(createdAt, 0)
	rt.ExpiresAt = time.Unix(expiresAt, 0)

	return &rt, nil
}

func (s *SQLiteStore) DeleteSessionRefreshTokens(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session refresh tokens: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveGrant(ctx context.Context, grant *Grant) error {
	var tokenJSON any
	if grant.GoogleToken != nil {
		raw, err := json.Marshal(grant.GoogleToken)
		if err != nil {
			return fmt.Errorf("marshal google token: %w", err)
		}
		tokenJSON = string(raw)
	}

	query := `
	INSERT INTO grants (token, google_id, email, name, picture, google_token_json, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		grant.Token, grant.GoogleID, grant.Email, grant.Name, nullable(grant.Picture),
		tokenJSON, grant.CreatedAt.Unix(), grant.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ConsumeGrant(ctx context.Context, token string) (*Grant, error) {
	// Delete-on-read makes the grant single-use even under concurrent redemption.
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM grants WHERE token = ?
		 RETURNING token, google_id, email, name, picture, google_token_json, created_at, expires_at`,
		token,
	)

	var grant Grant
	var picture, tokenJSON sql.NullString
	var createdAt, expiresAt int64
	err := row.Scan(&grant.Token, &grant.GoogleID, &grant.Email, &grant.Name, &picture, &tokenJSON, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume grant: %w", err)
	}
	grant.Picture = picture.String
	grant.CreatedAt = time.Unix(createdAt, 0)
	grant.ExpiresAt = time.Unix(expiresAt, 0)
	if tokenJSON.Valid {
		var tok oauth2.Token
		if err := json.Unmarshal([]byte(tokenJSON.String), &tok); err != nil {
			return nil, fmt.Errorf("unmarshal google token: %w", err)
		}
		grant.GoogleToken = &tok
	}

	return &grant, nil
}

func (s *SQLiteStore) SaveGoogleToken(ctx context.Context, userID string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal google token: %w", err)
	}

	query := `
	INSERT INTO google_tokens (user_id, token_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		token_json = excluded.token_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query, userID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save google token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetGoogleToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token_json FROM google_tokens WHERE user_id = ?`, userID)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan google token row: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("unmarshal google token: %w", err)
	}
	return &token, nil
}

func (s *SQLiteStore) CreateChatSession(ctx context.Context, chat *ChatSession) error {
	query := `
	INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt.Unix(), chat.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChatSession(ctx context.Context, id string) (*ChatSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id)

	var chat ChatSession
	var createdAt, updatedAt int64
	err := row.Scan(&chat.ID, &chat.UserID, &chat.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat session row: %w", err)
	}
	chat.CreatedAt = time.Unix(createdAt, 0)
	chat.UpdatedAt = time.Unix(updatedAt, 0)
	return &chat, nil
}

func (s *SQLiteStore) ListChatSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChatSession
	for rows.Next() {
		var chat ChatSession
		var createdAt, updatedAt int64
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session row: %w", err)
		}
		chat.CreatedAt = time.Unix(createdAt, 0)
		chat.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &chat)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendChatMessage(ctx context.Context, msg *ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt.Unix(), msg.ChatID)
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, chat_id, role, content, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE chat_id = ?))`,
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt.Unix(), msg.ChatID)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListChatMessages(ctx context.Context, chatID string, limit int) ([]*ChatMessage, error) {
	query := `SELECT id, chat_id, role, content, created_at FROM chat_messages WHERE chat_id = ? ORDER BY seq`
	args := []any{chatID}
	if limit > 0 {
		// Window the last N messages while keeping chronological order
		query = `SELECT id, chat_id, role, content, created_at FROM (
			SELECT id, chat_id, role, content, created_at, seq
			FROM chat_messages WHERE chat_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM grants WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return removed, fmt.Errorf("cleanup grants: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return removed, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	return removed, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
