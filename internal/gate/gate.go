package gate

import (
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
)

const recoveryQueryType = "recovery"

// Action is what the gate does with a request.
type Action string

const (
	ActionPass     Action = "pass"
	ActionRedirect Action = "redirect"
)

// Rule names the table entry that produced a decision.
type Rule string

const (
	RuleNone          Rule = ""
	RuleBypass        Rule = "bypass"
	RuleProtected     Rule = "protected"
	RuleAuthOnly      Rule = "auth_only"
	RuleResetPassword Rule = "reset_password"
)

// RouteTable holds the static prefix lists the gate evaluates. Prefixes match
// whole path segments: "/admin" covers "/admin/users" but not "/administrators".
type RouteTable struct {
	Bypass        []string
	Protected     []string
	AuthOnly      []string
	ResetPassword string
	RecoveryParam string
}

// DefaultRouteTable returns the application's route lists.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		Bypass: []string{
			routing.UserDashboardPath,
			routing.AdminDashboardPath,
			routing.ManagerDashboardPath,
			routing.RoleRouterPath,
		},
		Protected: []string{
			"/properties",
			"/settings",
			"/account",
			"/profile",
			"/admin",
			"/manager",
			"/api/profile",
			"/api/admin",
		},
		AuthOnly: []string{
			routing.LoginPath,
			routing.SignupPath,
			routing.ForgotPasswordPath,
		},
		ResetPassword: routing.ResetPasswordPath,
		RecoveryParam: "type",
	}
}

// Decision is the result of evaluating one request.
type Decision struct {
	Action   Action
	Rule     Rule
	Location string
}

// Redirect reports whether the request must be answered with a redirect.
func (d Decision) Redirect() bool {
	return d.Action == ActionRedirect
}

// Evaluate applies the table to a request path and query. It is pure: the
// caller supplies whether the request's own cookie carries a valid session.
func (t RouteTable) Evaluate(requestPath string, query url.Values, authenticated bool) Decision {
	cleaned := routing.CleanPath(requestPath)

	if matchesAny(cleaned, t.Bypass) {
		return Decision{Action: ActionPass, Rule: RuleBypass}
	}
	if !authenticated && matchesAny(cleaned, t.Protected) {
		return Decision{Action: ActionRedirect, Rule: RuleProtected, Location: routing.LoginURL(cleaned)}
	}
	if authenticated && matchesAny(cleaned, t.AuthOnly) {
		return Decision{Action: ActionRedirect, Rule: RuleAuthOnly, Location: routing.RoleRouterPath}
	}
	if !authenticated && t.ResetPassword != "" && matchesPrefix(cleaned, t.ResetPassword) {
		param := t.RecoveryParam
		if param == "" {
			param = "type"
		}
		if query.Get(param) != recoveryQueryType {
			return Decision{Action: ActionRedirect, Rule: RuleResetPassword, Location: routing.ForgotPasswordPath}
		}
	}
	return Decision{Action: ActionPass}
}

// Covers reports whether any rule of the table can apply to the path. Paths
// outside every list are passed without consulting the session.
func (t RouteTable) Covers(requestPath string) bool {
	cleaned := routing.CleanPath(requestPath)
	if matchesAny(cleaned, t.Bypass) {
		return false
	}
	if matchesAny(cleaned, t.Protected) || matchesAny(cleaned, t.AuthOnly) {
		return true
	}
	return t.ResetPassword != "" && matchesPrefix(cleaned, t.ResetPassword)
}

func matchesAny(requestPath string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if matchesPrefix(requestPath, prefix) {
			return true
		}
	}
	return false
}

func matchesPrefix(requestPath, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return false
	}
	return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
}
