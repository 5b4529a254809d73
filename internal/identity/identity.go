// Package identity defines the application-level user identity derived from
// a verified Google credential.
package identity

import "time"

// Identity is a user known to the application. Identities are keyed by the
// stable Google subject identifier, never by email, since emails can change.
type Identity struct {
	// ID is the application-local identifier.
	ID string `json:"id"`

	// GoogleID is the stable Google subject ("sub") claim.
	GoogleID string `json:"google_id"`

	// Email is the verified email address from the Google credential.
	Email string `json:"email"`

	// Name is the display name, refreshed on every login.
	Name string `json:"name"`

	// Picture is the avatar URL, refreshed on every login.
	Picture string `json:"picture,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// Profile is the subset of an Identity exposed over the HTTP API.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Profile returns the API-safe view of the identity.
func (i *Identity) Profile() Profile {
	return Profile{
		ID:      i.ID,
		Email:   i.Email,
		Name:    i.Name,
		Picture: i.Picture,
	}
}
