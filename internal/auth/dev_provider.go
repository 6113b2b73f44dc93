package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errMissingDevEmail = errors.New("dev identity provider: email is required")

// DevIdentityConfig describes the default identity handed out in development.
type DevIdentityConfig struct {
	ID    string
	Email string
	Clock func() time.Time
}

// DevIdentityProvider stands in for the hosted auth backend during local
// development and is only wired when identity.provider is "dev". It returns
// fixed or email-derived identities without any credential check.
type DevIdentityProvider struct {
	defaultIdentity Identity
	clock           func() time.Time
}

// NewDevIdentityProvider constructs a dev provider from config.
func NewDevIdentityProvider(cfg DevIdentityConfig) (*DevIdentityProvider, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" {
		return nil, errMissingDevEmail
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = devIdentityID(email)
	}
	return &DevIdentityProvider{
		defaultIdentity: Identity{ID: id, Email: email},
		clock:           clock,
	}, nil
}

// Identity returns the configured identity, or a stable identity derived from email.
func (p *DevIdentityProvider) Identity(email string) Identity {
	identity := p.defaultIdentity
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" && email != identity.Email {
		identity = Identity{ID: devIdentityID(email), Email: email}
	}
	confirmedAt := p.clock().UTC().Truncate(time.Second)
	identity.EmailConfirmedAt = &confirmedAt
	return identity
}

// devIdentityID keeps dev identities stable across restarts so profiles survive.
func devIdentityID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("cordis-dev:"+email)).String()
}
