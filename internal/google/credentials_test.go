package google

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/rituo/rituo/internal/store"
)

func TestAccessToken_NoCredential(t *testing.T) {
	r := NewRefresher(store.NewMemory(), NewOAuthConfig("id", "secret", ""), nil)

	_, err := r.AccessToken(context.Background(), "user-1")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("AccessToken() error = %v, want ErrNoCredential", err)
	}
}

func TestAccessToken_FreshToken(t *testing.T) {
	repo := store.NewMemory()
	r := NewRefresher(repo, NewOAuthConfig("id", "secret", ""), nil)

	token := &oauth2.Token{
		AccessToken: "still-good",
		Expiry:      time.Now().Add(time.Hour),
	}
	if err := repo.SaveGoogleToken(context.Background(), "user-1", token); err != nil {
		t.Fatalf("SaveGoogleToken: %v", err)
	}

	got, err := r.AccessToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != "still-good" {
		t.Errorf("AccessToken() = %q, want %q", got, "still-good")
	}
}

func TestAccessToken_NoExpiryNeverRefreshes(t *testing.T) {
	repo := store.NewMemory()
	r := NewRefresher(repo, NewOAuthConfig("id", "secret", ""), nil)

	if err := repo.SaveGoogleToken(context.Background(), "user-1", &oauth2.Token{AccessToken: "eternal"}); err != nil {
		t.Fatalf("SaveGoogleToken: %v", err)
	}

	got, err := r.AccessToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != "eternal" {
		t.Errorf("AccessToken() = %q, want %q", got, "eternal")
	}
}

func TestAccessToken_ExpiringWithoutRefreshToken(t *testing.T) {
	repo := store.NewMemory()
	r := NewRefresher(repo, NewOAuthConfig("id", "secret", ""), nil)

	token := &oauth2.Token{
		AccessToken: "about-to-die",
		Expiry:      time.Now().Add(time.Minute),
	}
	if err := repo.SaveGoogleToken(context.Background(), "user-1", token); err != nil {
		t.Fatalf("SaveGoogleToken: %v", err)
	}

	// Within the threshold but no refresh token to rotate with
	if _, err := r.AccessToken(context.Background(), "user-1"); err == nil {
		t.Error("AccessToken() succeeded, want refresh failure")
	}
}

func TestExpiringSoon(t *testing.T) {
	now := time.Now()
	r := NewRefresher(store.NewMemory(), nil, nil, WithClock(func() time.Time { return now }))

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"no expiry", time.Time{}, false},
		{"far future", now.Add(time.Hour), false},
		{"inside threshold", now.Add(time.Minute), true},
		{"already expired", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.expiringSoon(&oauth2.Token{Expiry: tt.expiry})
			if got != tt.want {
				t.Errorf("expiringSoon() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultOAuthScopes(t *testing.T) {
	required := []string{
		"openid",
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/calendar",
		"https://www.googleapis.com/auth/tasks",
	}
	for _, scope := range required {
		found := false
		for _, s := range DefaultOAuthScopes {
			if s == scope {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("DefaultOAuthScopes missing %q", scope)
		}
	}
}
