package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Identity providers selectable through identity.provider.
const (
	IdentityProviderTAuth = "tauth"
	IdentityProviderDev   = "dev"
)

const (
	envPrefix                = "CORDIS"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabaseDSN       = "cordis.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultSessionIssuer     = "tauth"
	defaultCookieName        = "app_session"
	defaultSessionTTLMinutes = 60
	defaultBackendTimeoutMS  = 3000
	defaultLookupAttempts    = 3
	defaultLookupDelayMS     = 250
	defaultDevIdentityEmail  = "dev@cordis.local"
	maxProfileLookupAttempts = 10
	databaseDriverSQLite     = "sqlite"
	databaseDriverPostgres   = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	SessionCookieSecure  bool
	SessionTTL           time.Duration

	RedisAddress  string
	RedisPassword string

	BackendTimeout time.Duration

	ProfileLookupAttempts int
	ProfileLookupDelay    time.Duration

	IdentityProvider string
	DevIdentityID    string
	DevIdentityEmail string

	DiagnosticsEnabled bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", "")
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.cookie_secure", true)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("backend.timeout_ms", defaultBackendTimeoutMS)
	configViper.SetDefault("profile.lookup_attempts", defaultLookupAttempts)
	configViper.SetDefault("profile.lookup_delay_ms", defaultLookupDelayMS)
	configViper.SetDefault("identity.provider", IdentityProviderTAuth)
	configViper.SetDefault("identity.dev.email", defaultDevIdentityEmail)
	configViper.SetDefault("diagnostics.enabled", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		AllowedOrigins:        splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDriver:        strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:           configViper.GetString("database.dsn"),
		LogLevel:              configViper.GetString("log.level"),
		LogFormat:             strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		SessionSigningSecret:  configViper.GetString("session.signing_secret"),
		SessionIssuer:         configViper.GetString("session.issuer"),
		SessionCookieName:     configViper.GetString("session.cookie_name"),
		SessionCookieSecure:   configViper.GetBool("session.cookie_secure"),
		SessionTTL:            time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		RedisAddress:          strings.TrimSpace(configViper.GetString("redis.address")),
		RedisPassword:         configViper.GetString("redis.password"),
		BackendTimeout:        time.Duration(configViper.GetInt("backend.timeout_ms")) * time.Millisecond,
		ProfileLookupAttempts: configViper.GetInt("profile.lookup_attempts"),
		ProfileLookupDelay:    time.Duration(configViper.GetInt("profile.lookup_delay_ms")) * time.Millisecond,
		IdentityProvider:      strings.ToLower(strings.TrimSpace(configViper.GetString("identity.provider"))),
		DevIdentityID:         strings.TrimSpace(configViper.GetString("identity.dev.id")),
		DevIdentityEmail:      strings.TrimSpace(configViper.GetString("identity.dev.email")),
		DiagnosticsEnabled:    configViper.GetBool("diagnostics.enabled"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// DevIdentityEnabled reports whether sign-in goes through the dev identity provider.
func (c AppConfig) DevIdentityEnabled() bool {
	return c.IdentityProvider == IdentityProviderDev
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case databaseDriverSQLite, databaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q", databaseDriverSQLite, databaseDriverPostgres)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend.timeout_ms must be positive")
	}
	if c.ProfileLookupAttempts < 1 || c.ProfileLookupAttempts > maxProfileLookupAttempts {
		return fmt.Errorf("profile.lookup_attempts must be between 1 and %d", maxProfileLookupAttempts)
	}
	if c.ProfileLookupDelay < 0 {
		return fmt.Errorf("profile.lookup_delay_ms must not be negative")
	}
	switch c.IdentityProvider {
	case IdentityProviderTAuth:
	case IdentityProviderDev:
		if c.DevIdentityEmail == "" {
			return fmt.Errorf("identity.dev.email is required for the dev identity provider")
		}
	default:
		return fmt.Errorf("identity.provider must be %q or %q", IdentityProviderTAuth, IdentityProviderDev)
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
