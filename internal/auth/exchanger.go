package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rituo/rituo/internal/identity"
	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/store"
)

// Exchanger turns Google artifacts into verified application identities.
// Every successful exchange upserts the identity so profile fields stay
// current across logins.
type Exchanger struct {
	repo     store.Repository
	verifier GoogleVerifier
	states   *StateStore
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	grantTTL time.Duration
	now      func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithMetrics attaches exchange metrics.
func WithMetrics(m *instrumentation.Metrics) ExchangerOption {
	return func(e *Exchanger) { e.metrics = m }
}

// WithGrantTTL overrides the temporary token redemption window.
func WithGrantTTL(ttl time.Duration) ExchangerOption {
	return func(e *Exchanger) { e.grantTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ExchangerOption {
	return func(e *Exchanger) { e.now = now }
}

// NewExchanger creates a credential exchanger.
func NewExchanger(repo store.Repository, verifier GoogleVerifier, states *StateStore, logger *slog.Logger, opts ...ExchangerOption) *Exchanger {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exchanger{
		repo:     repo,
		verifier: verifier,
		states:   states,
		logger:   logging.WithOperation(logger, "credential_exchange"),
		grantTTL: DefaultGrantTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange verifies the artifact and returns the stored identity. The caller
// is responsible for issuing a session afterwards.
func (e *Exchanger) Exchange(ctx context.Context, artifact Artifact) (*identity.Identity, error) {
	kind, kindErr := artifact.Kind()
	if kindErr != nil {
		e.metrics.RecordCredentialExchange(ctx, "none", instrumentation.AuthResultFailure)
		return nil, kindErr
	}

	var (
		ident *identity.Identity
		err   error
	)
	switch kind {
	case KindCredential:
		ident, err = e.exchangeCredential(ctx, artifact.Credential)
	case KindTempToken:
		ident, err = e.exchangeTempToken(ctx, artifact.TempToken)
	case KindAuthCode:
		ident, err = e.exchangeAuthCode(ctx, artifact.AuthCode(), artifact.State)
	}

	if err != nil {
		e.metrics.RecordCredentialExchange(ctx, string(kind), resultFor(err))
		e.logger.Warn("credential exchange failed",
			"artifact", string(kind),
			logging.Err(err),
		)
		return nil, err
	}

	e.metrics.RecordCredentialExchange(ctx, string(kind), instrumentation.AuthResultSuccess)
	e.logger.Info("credential exchange succeeded",
		"artifact", string(kind),
		logging.UserHash(ident.Email),
	)
	return ident, nil
}

// exchangeCredential verifies a signed ID credential offline.
func (e *Exchanger) exchangeCredential(ctx context.Context, raw string) (*identity.Identity, error) {
	claims, err := e.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrCredentialExpired("signed credential has expired")
		}
		return nil, ErrInvalidCredential("signed credential could not be verified")
	}
	return e.upsert(ctx, claims)
}

// exchangeTempToken redeems a single-use temporary token minted by the
// server-side callback. The grant is consumed atomically so a replayed token
// fails no matter how the first redemption raced it.
func (e *Exchanger) exchangeTempToken(ctx context.Context, token string) (*identity.Identity, error) {
	grant, err := e.repo.ConsumeGrant(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrExpiredGrant("temporary token is unknown or already redeemed")
		}
		return nil, ErrServerError("grant lookup failed")
	}
	if grant.Expired(e.now()) {
		return nil, ErrExpiredGrant("temporary token redemption window has passed")
	}

	ident, err := e.upsert(ctx, &Claims{
		Subject: grant.GoogleID,
		Email:   grant.Email,
		Name:    grant.Name,
		Picture: grant.Picture,
	})
	if err != nil {
		return nil, err
	}

	if grant.GoogleToken != nil {
		if err := e.repo.SaveGoogleToken(ctx, ident.ID, grant.GoogleToken); err != nil {
			return nil, ErrServerError("failed to store Google token")
		}
	}
	return ident, nil
}

// exchangeAuthCode redeems an authorization code directly with Google after
// checking the anti-forgery state.
func (e *Exchanger) exchangeAuthCode(ctx context.Context, code, state string) (*identity.Identity, error) {
	if err := e.states.Consume(state); err != nil {
		return nil, ErrStateMismatch("state does not match an outstanding authorization flow")
	}

	token, err := e.verifier.ExchangeCode(ctx, code)
	if err != nil {
		return nil, ErrInvalidCredential("authorization code could not be redeemed")
	}

	claims, err := e.verifier.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, ErrInvalidCredential("could not resolve identity behind authorization code")
	}

	ident, err := e.upsert(ctx, claims)
	if err != nil {
		return nil, err
	}

	if err := e.repo.SaveGoogleToken(ctx, ident.ID, token); err != nil {
		return nil, ErrServerError("failed to store Google token")
	}
	return ident, nil
}

// HandleCallback completes the server-side flow: it redeems the code with
// Google and mints a single-use temporary token the frontend exchanges for a
// session. Returns the temporary token.
func (e *Exchanger) HandleCallback(ctx context.Context, code, state string) (string, error) {
	if err := e.states.Consume(state); err != nil {
		return "", ErrStateMismatch("state does not match an outstanding authorization flow")
	}

	token, err := e.verifier.ExchangeCode(ctx, code)
	if err != nil {
		return "", ErrInvalidCredential("authorization code could not be redeemed")
	}

	claims, err := e.verifier.FetchUserInfo(ctx, token)
	if err != nil {
		return "", ErrInvalidCredential("could not resolve identity behind authorization code")
	}

	grantToken, err := GenerateGrantToken()
	if err != nil {
		return "", ErrServerError("failed to generate temporary token")
	}

	now := e.now()
	grant := &store.Grant{
		Token:       grantToken,
		GoogleID:    claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Picture:     claims.Picture,
		GoogleToken: token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.grantTTL),
	}
	if err := e.repo.SaveGrant(ctx, grant); err != nil {
		return "", ErrServerError("failed to store grant")
	}

	e.logger.Info("issued temporary token",
		logging.UserHash(claims.Email),
		"expires_at", grant.ExpiresAt,
	)
	return grantToken, nil
}

// BeginFlow issues a fresh anti-forgery state for a new authorization flow.
func (e *Exchanger) BeginFlow() (string, error) {
	return e.states.Issue()
}

// upsert records the verified identity, preserving the application id and
// creation time across logins.
func (e *Exchanger) upsert(ctx context.Context, claims *Claims) (*identity.Identity, error) {
	if claims.Subject == "" {
		return nil, ErrInvalidCredential("credential carries no subject")
	}
	ident, err := e.repo.UpsertIdentity(ctx, &identity.Identity{
		GoogleID:    claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Picture:     claims.Picture,
		LastLoginAt: e.now(),
	})
	if err != nil {
		return nil, ErrServerError("failed to store identity")
	}
	return ident, nil
}

// resultFor maps an exchange error onto a metric result label.
func resultFor(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case "credential_expired", "expired_grant":
			return instrumentation.AuthResultExpired
		}
	}
	return instrumentation.AuthResultFailure
}
