package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/diagnostics"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "server-test-secret"
	testCookieName    = "app_session"
	testDevEmail      = "owner@example.com"
	jsonContentType   = "application/json"
)

type testServer struct {
	server   *httptest.Server
	client   *http.Client
	sessions *auth.SessionStore
	profiles *profiles.Service
}

type testServerOptions struct {
	logger      *zap.Logger
	diagnostics bool
	fetcher     profiles.Fetcher
}

func newTestServer(t *testing.T, options testServerOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&profiles.Profile{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct profile service: %v", err)
	}
	var fetcher profiles.Fetcher = profileService
	if options.fetcher != nil {
		fetcher = options.fetcher
	}
	resolver, err := profiles.NewResolver(profiles.ResolverConfig{
		Fetcher:  fetcher,
		Attempts: 2,
		Delay:    time.Millisecond,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        validator.Issuer(),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	sessions, err := auth.NewSessionStore(auth.SessionStoreConfig{
		Validator: validator,
		Issuer:    issuer,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("failed to construct session store: %v", err)
	}
	devIdentities, err := auth.NewDevIdentityProvider(auth.DevIdentityConfig{Email: testDevEmail})
	if err != nil {
		t.Fatalf("failed to construct dev provider: %v", err)
	}

	var reporter *diagnostics.Reporter
	if options.diagnostics {
		reporter, err = diagnostics.NewReporter(diagnostics.Config{Sessions: sessions, Profiles: profileService, Logger: logger})
		if err != nil {
			t.Fatalf("failed to construct reporter: %v", err)
		}
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:       sessions,
		Profiles:       profileService,
		Resolver:       resolver,
		DevIdentities:  devIdentities,
		Diagnostics:    reporter,
		CookieOptions:  auth.CookieOptions{Name: testCookieName},
		AllowedOrigins: []string{"https://app.example.com"},
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to construct cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 5 * time.Second,
	}

	return &testServer{server: server, client: client, sessions: sessions, profiles: profileService}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()
	request, err := http.NewRequest(method, s.server.URL+path, body)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	response, err := s.client.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	return response
}

func (s *testServer) devLogin(t *testing.T, email string) sessionTokenPayload {
	t.Helper()
	body := strings.NewReader(`{"email":"` + email + `"}`)
	response := s.do(t, http.MethodPost, "/auth/dev/login", body)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("dev login failed with status %d", response.StatusCode)
	}
	var payload sessionTokenPayload
	decodeJSON(t, response, &payload)
	return payload
}

func expectRedirect(t *testing.T, response *http.Response, location string) {
	t.Helper()
	if response.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 to %q, got %d", location, response.StatusCode)
	}
	if got := response.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func decodeJSON(t *testing.T, response *http.Response, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return parsed
}
