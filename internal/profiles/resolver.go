package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLookupAttempts = 3
	defaultLookupDelay    = 250 * time.Millisecond
	defaultAttemptTimeout = 3 * time.Second
)

// Fetcher loads a single profile; nil with no error means the row is absent.
type Fetcher interface {
	FetchProfile(ctx context.Context, identityID string) (*Profile, error)
}

// ResolverConfig bounds how long a resolution may wait for a profile row.
type ResolverConfig struct {
	Fetcher        Fetcher
	Attempts       int
	Delay          time.Duration
	AttemptTimeout time.Duration
	Logger         *zap.Logger
}

// Resolution is the outcome of resolving a profile. A missing profile is not an error.
type Resolution struct {
	Profile  *Profile
	Attempts int
	Err      error
}

// Found reports whether a profile row was loaded.
func (r Resolution) Found() bool {
	return r.Profile != nil
}

// Role classifies the resolved profile, falling back to the default role.
func (r Resolution) Role() roles.Role {
	if r.Profile == nil {
		return roles.Default
	}
	return r.Profile.ClassifiedRole()
}

// Resolver fetches profiles with a fixed, small number of attempts. Lookup
// failures are logged and treated as an absent profile.
type Resolver struct {
	fetcher        Fetcher
	attempts       int
	delay          time.Duration
	attemptTimeout time.Duration
	logger         *zap.Logger
	group          singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("profiles: resolver fetcher required")
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultLookupAttempts
	}
	delay := cfg.Delay
	if delay < 0 {
		delay = defaultLookupDelay
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher:        cfg.Fetcher,
		attempts:       attempts,
		delay:          delay,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}, nil
}

// Attempts reports the configured attempt bound.
func (r *Resolver) Attempts() int {
	return r.attempts
}

// Resolve loads the identity's profile. Concurrent calls for the same
// identity share a single lookup, which runs detached from any one caller's
// cancellation and is bounded by lookupBudget instead.
func (r *Resolver) Resolve(ctx context.Context, identityID string) Resolution {
	identityID = normalize(identityID)
	if identityID == "" {
		return Resolution{Err: ErrMissingIdentityID}
	}

	resultCh := r.group.DoChan(identityID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupBudget())
		defer cancel()
		return r.resolve(lookupCtx, identityID), nil
	})
	select {
	case result := <-resultCh:
		return result.Val.(Resolution)
	case <-ctx.Done():
		return Resolution{Err: ctx.Err()}
	}
}

func (r *Resolver) lookupBudget() time.Duration {
	return time.Duration(r.attempts) * (r.attemptTimeout + r.delay)
}

func (r *Resolver) resolve(ctx context.Context, identityID string) Resolution {
	resolution := Resolution{}
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resolution.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		profile, err := r.fetcher.FetchProfile(attemptCtx, identityID)
		cancel()

		switch {
		case err != nil:
			resolution.Err = err
			r.logger.Warn("profile lookup failed",
				zap.String("identity_id", identityID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case profile != nil:
			resolution.Profile = profile
			resolution.Err = nil
			return resolution
		default:
			resolution.Err = nil
			r.logger.Debug("profile not found yet",
				zap.String("identity_id", identityID),
				zap.Int("attempt", attempt),
			)
		}

		if attempt == r.attempts {
			break
		}
		if err := wait(ctx, r.delay); err != nil {
			resolution.Err = err
			break
		}
	}

	r.logger.Info("profile unresolved, using default role",
		zap.String("identity_id", identityID),
		zap.Int("attempts", resolution.Attempts),
		zap.String("role", string(roles.Default)),
	)
	return resolution
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
