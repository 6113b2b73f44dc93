package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer     = "tauth"
	defaultSessionCookieName = "app_session"
)

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// SessionClaims is the session token payload shared with the hosted auth backend.
type SessionClaims struct {
	UserID           string `json:"user_id"`
	UserEmail        string `json:"user_email"`
	EmailConfirmedAt int64  `json:"email_confirmed_at,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes which session tokens are accepted.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator turns session cookies into sessions. It performs no
// revocation lookups; SessionStore layers those on top.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	parser        *jwt.Parser
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// Issuer returns the issuer every accepted token must carry.
func (v *SessionValidator) Issuer() string {
	return v.issuer
}

// TokenFromRequest returns the raw session cookie value, or an empty string.
func (v *SessionValidator) TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// Session validates the token and converts its claims into a Session.
func (v *SessionValidator) Session(token string) (Session, error) {
	claims, err := v.ValidateToken(token)
	if err != nil {
		return Session{}, err
	}
	return sessionFromClaims(claims, strings.TrimSpace(token)), nil
}

// ValidateToken checks signature, issuer and expiry and returns the claims.
// The subject and user_id claims must name the same identity.
func (v *SessionValidator) ValidateToken(token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.signingKey); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	userID := strings.TrimSpace(claims.UserID)
	switch {
	case subject == "" || userID == "":
		return SessionClaims{}, ErrMissingSessionSubject
	case subject != userID:
		return SessionClaims{}, fmt.Errorf("%w: subject does not match user_id", ErrInvalidSessionToken)
	}
	return claims, nil
}

func (v *SessionValidator) signingKey(*jwt.Token) (interface{}, error) {
	return v.signingSecret, nil
}
