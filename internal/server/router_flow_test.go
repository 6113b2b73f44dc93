package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingFetcher struct{}

func (failingFetcher) FetchProfile(context.Context, string) (*profiles.Profile, error) {
	return nil, errors.New("connection refused")
}

func TestRoleRoutingFlow(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	expectRedirect(t, server.do(t, http.MethodGet, "/properties", nil), "/auth/login?redirectTo=%2Fproperties")
	expectRedirect(t, server.do(t, http.MethodGet, "/auth/redirect", nil), "/auth/login?notice=session_expired&redirectTo=%2Fauth%2Fredirect")

	login := server.devLogin(t, testDevEmail)
	if login.IdentityID == "" || login.RedirectTo != "/auth/redirect" {
		t.Fatalf("unexpected dev login payload %#v", login)
	}

	profile, err := server.profiles.FetchProfile(context.Background(), login.IdentityID)
	if err != nil || profile == nil {
		t.Fatalf("expected profile provisioned on sign in, got %v / %v", profile, err)
	}

	expectRedirect(t, server.do(t, http.MethodGet, "/auth/redirect", nil), "/dashboard")
	expectRedirect(t, server.do(t, http.MethodGet, "/auth/login", nil), "/auth/redirect")

	dashboard := server.do(t, http.MethodGet, "/dashboard", nil)
	if dashboard.StatusCode != http.StatusOK {
		t.Fatalf("expected user dashboard, got %d", dashboard.StatusCode)
	}
	var payload dashboardPayload
	decodeJSON(t, dashboard, &payload)
	if payload.Role != "user" || payload.Dashboard != "/dashboard" || payload.DisplayName != testDevEmail {
		t.Fatalf("unexpected dashboard payload %#v", payload)
	}

	properties := server.do(t, http.MethodGet, "/properties", nil)
	if properties.StatusCode != http.StatusNotFound {
		t.Fatalf("expected signed-in request to pass the gate, got %d", properties.StatusCode)
	}

	if _, err := server.profiles.AssignRole(context.Background(), login.IdentityID, roles.Admin); err != nil {
		t.Fatalf("failed to assign role: %v", err)
	}
	expectRedirect(t, server.do(t, http.MethodGet, "/auth/redirect", nil), "/admin/dashboard")
	expectRedirect(t, server.do(t, http.MethodGet, "/dashboard", nil), "/admin/dashboard")
	if response := server.do(t, http.MethodGet, "/admin/dashboard", nil); response.StatusCode != http.StatusOK {
		t.Fatalf("expected admin dashboard, got %d", response.StatusCode)
	}

	if response := server.do(t, http.MethodPost, "/auth/signout", nil); response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected sign out to succeed, got %d", response.StatusCode)
	}
	expectRedirect(t, server.do(t, http.MethodGet, "/settings", nil), "/auth/login?redirectTo=%2Fsettings")
}

func TestRoleRouterFallsBackWhenProfileLookupFails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	server := newTestServer(t, testServerOptions{logger: zap.New(core), fetcher: failingFetcher{}})
	server.devLogin(t, "someone@example.com")

	expectRedirect(t, server.do(t, http.MethodGet, "/auth/redirect", nil), "/dashboard?notice=profile_unavailable")

	dashboard := server.do(t, http.MethodGet, "/dashboard", nil)
	if dashboard.StatusCode != http.StatusOK {
		t.Fatalf("expected user dashboard, got %d", dashboard.StatusCode)
	}
	var payload dashboardPayload
	decodeJSON(t, dashboard, &payload)
	if payload.Role != "user" || payload.Notice != "profile_unavailable" {
		t.Fatalf("unexpected dashboard payload %#v", payload)
	}
	if len(logs.FilterMessage("profile lookup failed").All()) == 0 {
		t.Fatalf("expected profile lookup failures to be logged")
	}
}

func TestSessionEndpointReportsRoleAndTarget(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	var anonymous sessionPayload
	decodeJSON(t, server.do(t, http.MethodGet, "/api/session", nil), &anonymous)
	if anonymous.Authenticated || anonymous.Target != "/auth/login" {
		t.Fatalf("unexpected anonymous payload %#v", anonymous)
	}

	login := server.devLogin(t, "manager@example.com")
	if _, err := server.profiles.AssignRole(context.Background(), login.IdentityID, roles.Manager); err != nil {
		t.Fatalf("failed to assign role: %v", err)
	}

	var payload sessionPayload
	decodeJSON(t, server.do(t, http.MethodGet, "/api/session", nil), &payload)
	if !payload.Authenticated || payload.Identity == nil || payload.Identity.Email != "manager@example.com" {
		t.Fatalf("unexpected session payload %#v", payload)
	}
	if payload.Role != "manager" || payload.Target != "/manager/dashboard" || payload.Profile == nil {
		t.Fatalf("unexpected role routing %#v", payload)
	}
}

func TestProfileEditAndAdminRoleAssignment(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	member := server.devLogin(t, "member@example.com")

	update := server.do(t, http.MethodPatch, "/api/profile", strings.NewReader(`{"full_name":"  Ada Member "}`))
	if update.StatusCode != http.StatusOK {
		t.Fatalf("expected profile update, got %d", update.StatusCode)
	}
	var updated profilePayload
	decodeJSON(t, update, &updated)
	if updated.FullName == nil || *updated.FullName != "Ada Member" {
		t.Fatalf("unexpected updated profile %#v", updated)
	}

	forbidden := server.do(t, http.MethodPut, "/api/admin/profiles/"+member.IdentityID+"/role", strings.NewReader(`{"role":"admin"}`))
	if forbidden.StatusCode != http.StatusForbidden {
		t.Fatalf("expected non-admin to be forbidden, got %d", forbidden.StatusCode)
	}

	admin := server.devLogin(t, "admin@example.com")
	if _, err := server.profiles.AssignRole(context.Background(), admin.IdentityID, roles.Admin); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	invalid := server.do(t, http.MethodPut, "/api/admin/profiles/"+member.IdentityID+"/role", strings.NewReader(`{"role":"superuser"}`))
	if invalid.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid role to be rejected, got %d", invalid.StatusCode)
	}
	missing := server.do(t, http.MethodPut, "/api/admin/profiles/unknown-id/role", strings.NewReader(`{"role":"manager"}`))
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown profile to be 404, got %d", missing.StatusCode)
	}

	assigned := server.do(t, http.MethodPut, "/api/admin/profiles/"+member.IdentityID+"/role", strings.NewReader(`{"role":" Manager "}`))
	if assigned.StatusCode != http.StatusOK {
		t.Fatalf("expected role assignment, got %d", assigned.StatusCode)
	}
	var assignedProfile profilePayload
	decodeJSON(t, assigned, &assignedProfile)
	if assignedProfile.Role != "manager" {
		t.Fatalf("expected manager role, got %q", assignedProfile.Role)
	}
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	request, err := http.NewRequest(http.MethodGet, server.server.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("X-Request-ID", "req-123")
	response, err := server.client.Do(request)
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer response.Body.Close()
	if response.Header.Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", response.Header.Get("X-Request-ID"))
	}

	generated := server.do(t, http.MethodGet, "/healthz", nil)
	if generated.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestDiagnosticsRouteIsOptIn(t *testing.T) {
	disabled := newTestServer(t, testServerOptions{})
	if response := disabled.do(t, http.MethodGet, "/debug/auth", nil); response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected diagnostics to be disabled, got %d", response.StatusCode)
	}
}
