package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBackendTimeout = 3 * time.Second

var (
	ErrSessionRevoked       = errors.New("session store: session revoked")
	ErrSessionUnavailable   = errors.New("session store: session backend unavailable")
	ErrSessionIssuerMissing = errors.New("session store: token issuer not configured")
	errMissingValidator     = errors.New("session store: session validator required")
)

// SessionStoreConfig wires the session store to its collaborators.
type SessionStoreConfig struct {
	Validator      *SessionValidator
	Issuer         *TokenIssuer
	Revocations    RevocationStore
	Notifier       *ChangeNotifier
	Logger         *zap.Logger
	BackendTimeout time.Duration
}

// SessionStore resolves, refreshes and ends sessions. Every failure to
// establish a session is reported as "no session".
type SessionStore struct {
	validator   *SessionValidator
	issuer      *TokenIssuer
	revocations RevocationStore
	notifier    *ChangeNotifier
	logger      *zap.Logger
	timeout     time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(cfg SessionStoreConfig) (*SessionStore, error) {
	if cfg.Validator == nil {
		return nil, errMissingValidator
	}
	revocations := cfg.Revocations
	if revocations == nil {
		revocations = NewMemoryRevocationStore(nil)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewChangeNotifier()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.BackendTimeout
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}
	return &SessionStore{
		validator:   cfg.Validator,
		issuer:      cfg.Issuer,
		revocations: revocations,
		notifier:    notifier,
		logger:      logger,
		timeout:     timeout,
	}, nil
}

// CookieName is the cookie carrying the session token.
func (s *SessionStore) CookieName() string {
	return s.validator.CookieName()
}

// OnChange registers a listener for sign-in, sign-out and refresh events.
func (s *SessionStore) OnChange(listener ChangeListener) {
	s.notifier.OnChange(listener)
}

// Subscribe streams session changes for one identity.
func (s *SessionStore) Subscribe(ctx context.Context, identityID string) (<-chan SessionChange, func()) {
	return s.notifier.Subscribe(ctx, identityID)
}

// Inspect validates the token and reports why it was rejected.
func (s *SessionStore) Inspect(ctx context.Context, token string) (*Session, error) {
	session, err := s.validator.Session(token)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	revoked, err := s.revocations.IsRevoked(lookupCtx, session.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}
	return &session, nil
}

// GetSession returns the session for the token, or nil when there is none
// or its state cannot be established.
func (s *SessionStore) GetSession(ctx context.Context, token string) *Session {
	session, err := s.Inspect(ctx, token)
	if err != nil {
		s.logRejection(err)
		return nil
	}
	return session
}

// TokenFromRequest extracts the raw session token carried by the request cookie.
func (s *SessionStore) TokenFromRequest(r *http.Request) string {
	return s.validator.TokenFromRequest(r)
}

// SessionFromRequest resolves the session carried by the request cookie.
func (s *SessionStore) SessionFromRequest(r *http.Request) *Session {
	if r == nil {
		return nil
	}
	return s.GetSession(r.Context(), s.TokenFromRequest(r))
}

// Authenticated reports whether the request carries a valid session.
func (s *SessionStore) Authenticated(r *http.Request) bool {
	return s.SessionFromRequest(r) != nil
}

// SignIn mints a session for an identity already authenticated elsewhere.
func (s *SessionStore) SignIn(ctx context.Context, identity Identity) (Session, error) {
	if s.issuer == nil {
		return Session{}, ErrSessionIssuerMissing
	}
	session, err := s.issuer.Issue(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("session signed in", zap.String("identity_id", session.Identity.ID))
	s.notifier.Publish(ctx, SessionChange{Event: EventSignedIn, Session: session})
	return session, nil
}

// Refresh replaces the session token and revokes the previous one.
func (s *SessionStore) Refresh(ctx context.Context, current Session) (Session, error) {
	if s.issuer == nil {
		return Session{}, ErrSessionIssuerMissing
	}
	refreshed, err := s.issuer.Issue(ctx, current.Identity)
	if err != nil {
		return Session{}, err
	}
	if err := s.revoke(ctx, current); err != nil {
		return Session{}, err
	}
	s.logger.Debug("session token refreshed", zap.String("identity_id", current.Identity.ID))
	s.notifier.Publish(ctx, SessionChange{Event: EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// SignOut revokes the session token so it no longer authenticates.
func (s *SessionStore) SignOut(ctx context.Context, session Session) error {
	if err := s.revoke(ctx, session); err != nil {
		return err
	}
	s.logger.Info("session signed out", zap.String("identity_id", session.Identity.ID))
	s.notifier.Publish(ctx, SessionChange{Event: EventSignedOut, Session: session})
	return nil
}

func (s *SessionStore) revoke(ctx context.Context, session Session) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.revocations.Revoke(writeCtx, session.TokenID, session.ExpiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return nil
}

func (s *SessionStore) logRejection(err error) {
	switch {
	case errors.Is(err, ErrMissingSessionToken):
		s.logger.Debug("session token missing")
	case errors.Is(err, ErrExpiredSessionToken), errors.Is(err, ErrSessionRevoked):
		s.logger.Info("session rejected", zap.Error(err))
	default:
		s.logger.Warn("session rejected", zap.Error(err))
	}
}
