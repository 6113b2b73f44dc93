package diagnostics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"go.uber.org/zap"
)

const (
	StepSession  = "session"
	StepProfile  = "profile"
	StepClassify = "classify"
	StepDecide   = "decide"

	StatusOK      = "ok"
	StatusMissing = "missing"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var (
	errMissingSessionInspector = errors.New("diagnostics: session inspector required")
	errMissingProfileFetcher   = errors.New("diagnostics: profile fetcher required")
)

// SessionInspector validates a token and explains a rejection.
type SessionInspector interface {
	Inspect(ctx context.Context, token string) (*auth.Session, error)
}

// Config wires a Reporter.
type Config struct {
	Sessions SessionInspector
	Profiles profiles.Fetcher
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Reporter walks the session, profile, classify and decide steps once and
// records what each produced. It never navigates and never retries.
type Reporter struct {
	sessions SessionInspector
	profiles profiles.Fetcher
	clock    func() time.Time
	logger   *zap.Logger
}

// Step records the result of one pipeline step.
type Step struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// SessionReport describes the session carried by the inspected token.
type SessionReport struct {
	Present        bool       `json:"present"`
	IdentityID     string     `json:"identity_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	EmailConfirmed bool       `json:"email_confirmed"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// ProfileReport describes the stored profile row.
type ProfileReport struct {
	Found    bool   `json:"found"`
	RawRole  string `json:"raw_role,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Report is the diagnostics snapshot for one identity.
type Report struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	Path           string        `json:"path"`
	Session        SessionReport `json:"session"`
	Profile        ProfileReport `json:"profile"`
	ClassifiedRole roles.Role    `json:"classified_role,omitempty"`
	Target         string        `json:"target,omitempty"`
	RedirectNeeded bool          `json:"redirect_needed"`
	Steps          []Step        `json:"steps"`
}

// NewReporter constructs a Reporter.
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Sessions == nil {
		return nil, errMissingSessionInspector
	}
	if cfg.Profiles == nil {
		return nil, errMissingProfileFetcher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		sessions: cfg.Sessions,
		profiles: cfg.Profiles,
		clock:    clock,
		logger:   logger,
	}, nil
}

// ReportToken inspects a raw session token as if it arrived on currentPath.
func (r *Reporter) ReportToken(ctx context.Context, token, currentPath string) Report {
	report := r.newReport(currentPath)

	started := r.clock()
	session, err := r.sessions.Inspect(ctx, token)
	switch {
	case err != nil:
		report.Session.Error = err.Error()
		status := StatusFailed
		if errors.Is(err, auth.ErrMissingSessionToken) {
			status = StatusMissing
		}
		report.addStep(StepSession, status, err.Error(), r.since(started))
	case session == nil:
		report.addStep(StepSession, StatusMissing, "", r.since(started))
	default:
		report.Session = describeSession(*session)
		report.addStep(StepSession, StatusOK, session.Identity.ID, r.since(started))
	}
	if !report.Session.Present {
		report.Target = routing.LoginURL(report.Path)
		report.RedirectNeeded = true
		report.skip(StepProfile, StepClassify)
		report.addStep(StepDecide, StatusOK, report.Target, 0)
		r.logReport(report)
		return report
	}
	return r.completeReport(ctx, report, report.Session.IdentityID)
}

// ReportIdentity inspects the profile and routing of an identity without a session.
func (r *Reporter) ReportIdentity(ctx context.Context, identityID, currentPath string) Report {
	report := r.newReport(currentPath)
	report.Session.IdentityID = identityID
	report.addStep(StepSession, StatusSkipped, "identity supplied directly", 0)
	return r.completeReport(ctx, report, identityID)
}

func (r *Reporter) newReport(currentPath string) Report {
	return Report{
		GeneratedAt: r.clock().UTC(),
		Path:        routing.CleanPath(currentPath),
		Steps:       make([]Step, 0, 4),
	}
}

func (r *Reporter) completeReport(ctx context.Context, report Report, identityID string) Report {
	started := r.clock()
	profile, err := r.profiles.FetchProfile(ctx, identityID)
	switch {
	case err != nil:
		report.Profile.Error = err.Error()
		report.addStep(StepProfile, StatusFailed, err.Error(), r.since(started))
	case profile == nil:
		report.addStep(StepProfile, StatusMissing, "", r.since(started))
	default:
		report.Profile = ProfileReport{
			Found:    true,
			RawRole:  profile.Role,
			FullName: profile.DisplayName(),
		}
		report.addStep(StepProfile, StatusOK, profile.Role, r.since(started))
	}

	report.ClassifiedRole = roles.Default
	if profile != nil {
		report.ClassifiedRole = profile.ClassifiedRole()
	}
	classifyDetail := ""
	if report.Profile.Found && string(report.ClassifiedRole) != report.Profile.RawRole {
		classifyDetail = "normalized from " + strconv.Quote(report.Profile.RawRole)
	}
	report.addStep(StepClassify, StatusOK, classifyDetail, 0)

	target, needed := routing.DecideRedirect(report.ClassifiedRole, report.Path)
	report.RedirectNeeded = needed
	report.Target = routing.TargetFor(report.ClassifiedRole)
	detail := "already on target"
	if needed {
		detail = target
	}
	report.addStep(StepDecide, StatusOK, detail, 0)

	r.logReport(report)
	return report
}

func (r *Reporter) since(started time.Time) time.Duration {
	return r.clock().Sub(started)
}

func (r *Reporter) logReport(report Report) {
	r.logger.Debug("diagnostics report generated",
		zap.String("path", report.Path),
		zap.Bool("session_present", report.Session.Present),
		zap.Bool("profile_found", report.Profile.Found),
		zap.String("classified_role", string(report.ClassifiedRole)),
		zap.String("target", report.Target),
	)
}

func (report *Report) addStep(name, status, detail string, elapsed time.Duration) {
	report.Steps = append(report.Steps, Step{
		Name:      name,
		Status:    status,
		Detail:    detail,
		ElapsedMS: elapsed.Milliseconds(),
	})
}

func (report *Report) skip(names ...string) {
	for _, name := range names {
		report.addStep(name, StatusSkipped, "no session", 0)
	}
}

func describeSession(session auth.Session) SessionReport {
	expiresAt := session.ExpiresAt
	return SessionReport{
		Present:        true,
		IdentityID:     session.Identity.ID,
		Email:          session.Identity.Email,
		EmailConfirmed: session.Identity.EmailConfirmed(),
		ExpiresAt:      &expiresAt,
	}
}
