package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// ErrTokenExpired is returned by VerifyIDToken when the credential's signature
// checks out but its lifetime has passed.
var ErrTokenExpired = errors.New("credential expired")

// Claims are the identity fields extracted from a verified Google artifact.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier abstracts the calls made against Google during a credential
// exchange. The production implementation talks to Google's token and
// userinfo endpoints; tests substitute a scripted fake.
type GoogleVerifier interface {
	// VerifyIDToken validates a signed ID credential offline and returns its
	// identity claims. Returns ErrTokenExpired for a well-formed but expired
	// credential.
	VerifyIDToken(ctx context.Context, rawToken string) (*Claims, error)

	// ExchangeCode redeems an authorization code for a Google OAuth token.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchUserInfo resolves the identity behind a Google OAuth token.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*Claims, error)
}

// VerifierConfig carries the Google OAuth client registration.
type VerifierConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Verifier is the production GoogleVerifier backed by Google's endpoints.
type Verifier struct {
	clientID string
	oauth    *oauth2.Config
}

// NewVerifier creates a verifier for the given OAuth client registration.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		clientID: cfg.ClientID,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}
}

var _ GoogleVerifier = (*Verifier)(nil)

// VerifyIDToken validates the credential's signature and audience against
// Google's published keys.
func (v *Verifier) VerifyIDToken(ctx context.Context, rawToken string) (*Claims, error) {
	payload, err := idtoken.Validate(ctx, rawToken, v.clientID)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("id token validation failed: %w", err)
	}

	claims := &Claims{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		claims.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		claims.Picture = picture
	}
	return claims, nil
}

// ExchangeCode redeems an authorization code at Google's token endpoint.
func (v *Verifier) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return token, nil
}

// FetchUserInfo resolves the token's owner via Google's userinfo endpoint.
func (v *Verifier) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*Claims, error) {
	// Create HTTP client with the token
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &Claims{
		Subject: info.ID,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}

// AuthCodeURL builds the Google consent URL for the given anti-forgery state.
func (v *Verifier) AuthCodeURL(state string) string {
	return v.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}
