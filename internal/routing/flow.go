package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"go.uber.org/zap"
)

// State is a step of the session to redirect pipeline.
type State string

const (
	StateIdle             State = "idle"
	StateResolvingSession State = "resolving_session"
	StateResolvingProfile State = "resolving_profile"
	StateDeciding         State = "deciding"
	StateRedirecting      State = "redirecting"
	StateSettled          State = "settled"
	StateLoginRequired    State = "login_required"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateRedirecting, StateSettled, StateLoginRequired, StateCancelled:
		return true
	default:
		return false
	}
}

// Notice is a user-visible, non-technical message code attached to an outcome.
type Notice string

const (
	NoticeNone               Notice = ""
	NoticeSessionExpired     Notice = "session_expired"
	NoticeProfileUnavailable Notice = "profile_unavailable"
)

const defaultSessionTimeout = 3 * time.Second

var errMissingProfileResolver = errors.New("routing: profile resolver required")

// SessionFunc resolves the session of the current page load; nil means signed out.
type SessionFunc func(ctx context.Context) *auth.Session

// ProfileResolver resolves the profile of an identity with bounded retry.
type ProfileResolver interface {
	Resolve(ctx context.Context, identityID string) profiles.Resolution
}

// Navigator performs the navigation chosen by the flow.
type Navigator interface {
	Navigate(ctx context.Context, target string, outcome Outcome) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, target string, outcome Outcome) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string, outcome Outcome) error {
	return f(ctx, target, outcome)
}

// FlowConfig wires a Flow.
type FlowConfig struct {
	Profiles       ProfileResolver
	Navigator      Navigator
	SessionTimeout time.Duration
	Logger         *zap.Logger
}

// Outcome describes where a flow ended and why.
type Outcome struct {
	State           State
	Target          string
	Role            roles.Role
	Session         *auth.Session
	Profile         *profiles.Profile
	ProfileAttempts int
	Notice          Notice
	Transitions     []State
	NavigationErr   error
}

// Flow runs the session, profile, decide, navigate pipeline for one page load.
// Navigation happens at most once per Flow however often Run is called.
type Flow struct {
	profiles       ProfileResolver
	navigator      Navigator
	sessionTimeout time.Duration
	logger         *zap.Logger

	redirected atomic.Bool
	mu         sync.Mutex
	state      State
}

// NewFlow constructs a Flow in the Idle state.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Profiles == nil {
		return nil, errMissingProfileResolver
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		profiles:       cfg.Profiles,
		navigator:      cfg.Navigator,
		sessionTimeout: timeout,
		logger:         logger,
		state:          StateIdle,
	}, nil
}

// State returns the most recent state the flow reached.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Redirected reports whether this flow has already navigated.
func (f *Flow) Redirected() bool {
	return f.redirected.Load()
}

// Run executes the pipeline for a page load at currentPath. When ctx ends
// before the chain completes, the remaining steps are skipped.
func (f *Flow) Run(ctx context.Context, currentPath string, sessionFn SessionFunc) Outcome {
	outcome := Outcome{State: StateIdle, Transitions: []State{StateIdle}}
	currentPath = CleanPath(currentPath)
	logger := f.logger.With(zap.String("path", currentPath))

	f.enter(&outcome, StateResolvingSession)
	started := time.Now()
	session := f.resolveSession(ctx, sessionFn)
	logger.Debug("session resolved", zap.Bool("authenticated", session != nil), zap.Duration("elapsed", time.Since(started)))
	if ctx.Err() != nil {
		return f.cancel(&outcome, logger)
	}
	if session == nil {
		outcome.Notice = NoticeSessionExpired
		outcome.Target = LoginURL(currentPath)
		f.enter(&outcome, StateLoginRequired)
		f.navigate(ctx, &outcome, logger)
		return outcome
	}
	outcome.Session = session
	logger = logger.With(zap.String("identity_id", session.Identity.ID))

	f.enter(&outcome, StateResolvingProfile)
	started = time.Now()
	resolution := f.profiles.Resolve(ctx, session.Identity.ID)
	logger.Debug("profile resolved",
		zap.Bool("found", resolution.Found()),
		zap.Int("attempts", resolution.Attempts),
		zap.Duration("elapsed", time.Since(started)),
	)
	if ctx.Err() != nil {
		return f.cancel(&outcome, logger)
	}
	outcome.Profile = resolution.Profile
	outcome.ProfileAttempts = resolution.Attempts
	if !resolution.Found() {
		outcome.Notice = NoticeProfileUnavailable
	}

	f.enter(&outcome, StateDeciding)
	outcome.Role = resolution.Role()
	target, needed := DecideRedirect(outcome.Role, currentPath)
	logger.Debug("redirect decided", zap.String("role", string(outcome.Role)), zap.String("target", target), zap.Bool("needed", needed))
	if !needed || f.redirected.Load() {
		f.enter(&outcome, StateSettled)
		return outcome
	}
	outcome.Target = target
	f.enter(&outcome, StateRedirecting)
	f.navigate(ctx, &outcome, logger)
	return outcome
}

func (f *Flow) resolveSession(ctx context.Context, sessionFn SessionFunc) *auth.Session {
	if sessionFn == nil {
		return nil
	}
	sessionCtx, cancel := context.WithTimeout(ctx, f.sessionTimeout)
	defer cancel()

	result := make(chan *auth.Session, 1)
	go func() {
		result <- sessionFn(sessionCtx)
	}()
	select {
	case session := <-result:
		return session
	case <-sessionCtx.Done():
		// an unresolved session is a signed-out session
		return nil
	}
}

func (f *Flow) navigate(ctx context.Context, outcome *Outcome, logger *zap.Logger) {
	if !f.redirected.CompareAndSwap(false, true) {
		outcome.State = StateSettled
		outcome.Transitions[len(outcome.Transitions)-1] = StateSettled
		f.setState(StateSettled)
		logger.Debug("navigation suppressed, flow already redirected")
		return
	}
	if f.navigator == nil {
		return
	}
	if err := f.navigator.Navigate(ctx, outcome.Target, *outcome); err != nil {
		outcome.NavigationErr = err
		logger.Error("navigation failed", zap.String("target", outcome.Target), zap.Error(err))
		return
	}
	logger.Info("navigated", zap.String("state", string(outcome.State)), zap.String("target", outcome.Target))
}

func (f *Flow) cancel(outcome *Outcome, logger *zap.Logger) Outcome {
	f.enter(outcome, StateCancelled)
	logger.Debug("flow cancelled before completion")
	return *outcome
}

func (f *Flow) enter(outcome *Outcome, state State) {
	outcome.State = state
	outcome.Transitions = append(outcome.Transitions, state)
	f.setState(state)
}

func (f *Flow) setState(state State) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}
