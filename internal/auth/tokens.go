package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateToken generates a random token of the given byte length, encoded as
// base64 URL without padding.
func GenerateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateState generates a random state parameter for CSRF protection
func GenerateState() (string, error) {
	return GenerateToken(StateTokenLength)
}

// GenerateGrantToken generates a random temporary token for the callback flow
func GenerateGrantToken() (string, error) {
	return GenerateToken(GrantTokenLength)
}
