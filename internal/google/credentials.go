package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/store"
)

// ErrNoCredential is returned when the user has no stored Google token.
var ErrNoCredential = errors.New("google: no stored credential")

// DefaultRefreshThreshold triggers a refresh when the stored token expires
// within this window.
const DefaultRefreshThreshold = 5 * time.Minute

// CredentialSource yields a valid Google access token for a user, refreshing
// the stored token when it is close to expiry.
type CredentialSource interface {
	// AccessToken returns a Google access token valid for at least the
	// refresh threshold. Returns ErrNoCredential when the user never granted
	// Google access.
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Refresher is the store-backed CredentialSource. Refreshed tokens are
// written back so later calls reuse them.
type Refresher struct {
	repo      store.Repository
	oauth     *oauth2.Config
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	threshold time.Duration
	now       func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithMetrics attaches refresh metrics.
func WithMetrics(m *instrumentation.Metrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

// WithThreshold overrides the early-refresh window.
func WithThreshold(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.threshold = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a credential source backed by the repository.
func NewRefresher(repo store.Repository, oauth *oauth2.Config, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		repo:      repo,
		oauth:     oauth,
		logger:    logging.WithOperation(logger, "google_credentials"),
		threshold: DefaultRefreshThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ CredentialSource = (*Refresher)(nil)

// AccessToken returns a valid access token for the user, refreshing first if
// the stored one expires within the threshold.
func (r *Refresher) AccessToken(ctx context.Context, userID string) (string, error) {
	token, err := r.repo.GetGoogleToken(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("google token lookup failed: %w", err)
	}

	if !r.expiringSoon(token) {
		return token.AccessToken, nil
	}

	refreshed, err := r.refresh(ctx, token)
	if err != nil {
		r.metrics.RecordGoogleTokenRefresh(ctx, instrumentation.AuthResultFailure)
		return "", fmt.Errorf("failed to refresh Google token: %w", err)
	}

	// Persist the refreshed token; keep serving even if the write fails
	if err := r.repo.SaveGoogleToken(ctx, userID, refreshed); err != nil {
		r.logger.Warn("failed to save refreshed token", logging.Err(err))
	}

	r.metrics.RecordGoogleTokenRefresh(ctx, instrumentation.AuthResultSuccess)
	r.logger.Debug("refreshed Google token", "expires_at", refreshed.Expiry)
	return refreshed.AccessToken, nil
}

// expiringSoon reports whether the token has expired or will expire within
// the threshold. Tokens without an expiry never refresh.
func (r *Refresher) expiringSoon(token *oauth2.Token) bool {
	if token.Expiry.IsZero() {
		return false
	}
	return r.now().Add(r.threshold).After(token.Expiry)
}

// refresh exchanges the refresh token for a fresh access token.
func (r *Refresher) refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	tokenSource := r.oauth.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return newToken, nil
}
