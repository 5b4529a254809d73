package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims are the JWT claims carried by an access token. The session id
// lets validation consult the store for revocation before the token expires.
type accessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// signAccessToken mints a signed access token for the given user and session.
func signAccessToken(secret []byte, issuer, userID, sessionID string, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("missing secret")
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}
	if ttl <= 0 {
		return "", errors.New("invalid expiry")
	}

	claims := accessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseAccessToken verifies the signature and lifetime of an access token.
func parseAccessToken(secret []byte, tokenString string, now func() time.Time) (*accessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
