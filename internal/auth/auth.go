// Package auth holds the session credentials the sync engine reads.
//
// Authentication mechanics live server-side; this package only extracts the
// two signals the engine cares about from an issued token: the subject (cache
// ownership) and the email-verified flag (one half of the sync gate).
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the bearer credential set attached to remote requests and
// the realtime handshake.
type Credentials struct {
	// Token is the bearer token issued by the backend.
	Token string

	// UserID is the authenticated principal (token subject).
	UserID string

	// DeviceID identifies this device on the realtime channel.
	DeviceID string

	// Verified is the account-verification flag from the token claims.
	Verified bool
}

// FromToken builds credentials from an issued token. The token is decoded
// without signature verification: the backend already validated it when it
// was issued, and the claims here only feed local gating, never
// authorization decisions.
func FromToken(token, deviceID string) (*Credentials, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	verified, _ := claims["email_verified"].(bool)

	return &Credentials{
		Token:    token,
		UserID:   sub,
		DeviceID: deviceID,
		Verified: verified,
	}, nil
}
