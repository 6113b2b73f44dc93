package routing

import (
	"net/url"
	"path"
	"strings"

	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
)

// Fixed application routes.
const (
	AdminDashboardPath   = "/admin/dashboard"
	ManagerDashboardPath = "/manager/dashboard"
	UserDashboardPath    = "/dashboard"
	RoleRouterPath       = "/auth/redirect"
	LoginPath            = "/auth/login"
	SignupPath           = "/auth/signup"
	ForgotPasswordPath   = "/auth/forgot-password"
	ResetPasswordPath    = "/auth/reset-password"

	RedirectToParam = "redirectTo"
)

// TargetFor maps a role to its dashboard. Unknown roles land on the user dashboard.
func TargetFor(role roles.Role) string {
	switch roles.Classify(role) {
	case roles.Admin:
		return AdminDashboardPath
	case roles.Manager:
		return ManagerDashboardPath
	default:
		return UserDashboardPath
	}
}

// DecideRedirect returns the dashboard the role belongs on, and false when the
// current path already is that dashboard.
func DecideRedirect(role roles.Role, currentPath string) (string, bool) {
	target := TargetFor(role)
	if CleanPath(currentPath) == target {
		return "", false
	}
	return target, true
}

// LoginURL builds the login route carrying the path to return to after sign-in.
func LoginURL(returnTo string) string {
	returnTo = SafeReturnPath(returnTo)
	if returnTo == "" {
		return LoginPath
	}
	query := url.Values{}
	query.Set(RedirectToParam, returnTo)
	return LoginPath + "?" + query.Encode()
}

// SafeReturnPath keeps return targets inside the application: absolute and
// scheme-relative URLs are dropped.
func SafeReturnPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() || parsed.Host != "" {
		return ""
	}
	return raw
}

// CleanPath normalizes a request path for comparison against route tables.
func CleanPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}
	if index := strings.IndexAny(raw, "?#"); index >= 0 {
		raw = raw[:index]
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}
