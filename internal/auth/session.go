package auth

import (
	"strings"
	"time"
)

// Identity is the externally managed user record carried by a session token.
type Identity struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time
}

// EmailConfirmed reports whether the auth backend has confirmed the identity email.
func (i Identity) EmailConfirmed() bool {
	return i.EmailConfirmedAt != nil && !i.EmailConfirmedAt.IsZero()
}

// Session is the client-held proof of authentication for exactly one identity.
type Session struct {
	Identity  Identity
	TokenID   string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn returns the remaining lifetime relative to now, floored at zero.
func (s Session) ExpiresIn(now time.Time) time.Duration {
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sessionFromClaims(claims SessionClaims, token string) Session {
	identity := Identity{
		ID:    strings.TrimSpace(claims.UserID),
		Email: strings.TrimSpace(claims.UserEmail),
	}
	if claims.EmailConfirmedAt > 0 {
		confirmedAt := time.Unix(claims.EmailConfirmedAt, 0).UTC()
		identity.EmailConfirmedAt = &confirmedAt
	}
	session := Session{
		Identity: identity,
		TokenID:  claims.ID,
		Token:    token,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session
}
