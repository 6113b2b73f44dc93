package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 60 * time.Minute
)

var (
	errMissingSigningSecret = errors.New("token issuer: signing secret must be provided")
	errMissingIssuer        = errors.New("token issuer: issuer must be provided")
	errMissingIdentityID    = errors.New("token issuer: identity id must be provided")
)

// TokenIssuerConfig configures the session token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
	NewTokenID    func() string
}

// TokenIssuer mints session tokens in the same format TAuth emits, so the
// SessionValidator accepts refreshed and dev-issued sessions unchanged.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
	newTokenID    func() string
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newTokenID := cfg.NewTokenID
	if newTokenID == nil {
		newTokenID = uuid.NewString
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
		newTokenID:    newTokenID,
	}, nil
}

// TTL reports the lifetime given to every issued token.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue produces a signed session for the identity.
func (i *TokenIssuer) Issue(_ context.Context, identity Identity) (Session, error) {
	identityID := strings.TrimSpace(identity.ID)
	if identityID == "" {
		return Session{}, errMissingIdentityID
	}

	now := i.clock().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		UserID:    identityID,
		UserEmail: strings.TrimSpace(identity.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.newTokenID(),
			Subject:   identityID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if identity.EmailConfirmed() {
		claims.EmailConfirmedAt = identity.EmailConfirmedAt.Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return Session{}, err
	}

	return sessionFromClaims(claims, signed), nil
}
