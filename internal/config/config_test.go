package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabaseDriver != "sqlite" || cfg.DatabaseDSN != defaultDatabaseDSN {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.SessionIssuer != "tauth" || cfg.SessionCookieName != "app_session" || !cfg.SessionCookieSecure {
		t.Fatalf("unexpected session defaults %#v", cfg)
	}
	if cfg.SessionTTL != time.Hour || cfg.BackendTimeout != 3*time.Second {
		t.Fatalf("unexpected durations ttl=%s timeout=%s", cfg.SessionTTL, cfg.BackendTimeout)
	}
	if cfg.ProfileLookupAttempts != 3 || cfg.ProfileLookupDelay != 250*time.Millisecond {
		t.Fatalf("unexpected lookup bounds %d %s", cfg.ProfileLookupAttempts, cfg.ProfileLookupDelay)
	}
	if cfg.DevIdentityEnabled() || cfg.DiagnosticsEnabled {
		t.Fatalf("expected dev identity and diagnostics disabled by default")
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CORDIS_SESSION_SIGNING_SECRET", "env-secret")
	t.Setenv("CORDIS_HTTP_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000 ,")
	t.Setenv("CORDIS_IDENTITY_PROVIDER", "DEV")
	t.Setenv("CORDIS_IDENTITY_DEV_EMAIL", "owner@example.com")
	t.Setenv("CORDIS_PROFILE_LOOKUP_ATTEMPTS", "5")
	t.Setenv("CORDIS_REDIS_ADDRESS", " localhost:6379 ")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionSigningSecret != "env-secret" {
		t.Fatalf("expected secret from env, got %q", cfg.SessionSigningSecret)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://app.example.com|http://localhost:3000" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
	if !cfg.DevIdentityEnabled() || cfg.DevIdentityEmail != "owner@example.com" {
		t.Fatalf("expected dev identity provider, got %q %q", cfg.IdentityProvider, cfg.DevIdentityEmail)
	}
	if cfg.ProfileLookupAttempts != 5 || cfg.RedisAddress != "localhost:6379" {
		t.Fatalf("unexpected attempts %d or redis address %q", cfg.ProfileLookupAttempts, cfg.RedisAddress)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		value   interface{}
		wantErr string
	}{
		{name: "missing secret", key: "session.signing_secret", value: "", wantErr: "session.signing_secret"},
		{name: "unknown driver", key: "database.driver", value: "mysql", wantErr: "database.driver"},
		{name: "empty dsn", key: "database.dsn", value: " ", wantErr: "database.dsn"},
		{name: "zero ttl", key: "session.ttl_minutes", value: 0, wantErr: "session.ttl_minutes"},
		{name: "zero timeout", key: "backend.timeout_ms", value: 0, wantErr: "backend.timeout_ms"},
		{name: "unbounded attempts", key: "profile.lookup_attempts", value: 100, wantErr: "profile.lookup_attempts"},
		{name: "no attempts", key: "profile.lookup_attempts", value: 0, wantErr: "profile.lookup_attempts"},
		{name: "negative delay", key: "profile.lookup_delay_ms", value: -1, wantErr: "profile.lookup_delay_ms"},
		{name: "unknown provider", key: "identity.provider", value: "google", wantErr: "identity.provider"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set("session.signing_secret", "secret")
			configViper.Set(testCase.key, testCase.value)

			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestLoadRequiresDevEmailForDevProvider(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")
	configViper.Set("identity.provider", "dev")
	configViper.Set("identity.dev.email", "")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "identity.dev.email") {
		t.Fatalf("expected dev email validation error, got %v", err)
	}
}
