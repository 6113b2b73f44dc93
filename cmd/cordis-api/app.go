package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/config"
	"github.com/MarcoPoloResearchLab/cordis/internal/database"
	"github.com/MarcoPoloResearchLab/cordis/internal/diagnostics"
	"github.com/MarcoPoloResearchLab/cordis/internal/logging"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the collaborators shared by the server and the CLI commands.
type application struct {
	logger        *zap.Logger
	db            *gorm.DB
	redis         redis.UniversalClient
	sessions      *auth.SessionStore
	profiles      *profiles.Service
	resolver      *profiles.Resolver
	devIdentities *auth.DevIdentityProvider
	diagnostics   *diagnostics.Reporter
	cookieOptions auth.CookieOptions
}

func newApplication(ctx context.Context, appConfig config.AppConfig) (*application, error) {
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}
	app := &application{logger: logger}

	app.db, err = database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	revocations, err := app.newRevocationStore(ctx, appConfig)
	if err != nil {
		app.Close()
		return nil, err
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        validator.Issuer(),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.sessions, err = auth.NewSessionStore(auth.SessionStoreConfig{
		Validator:      validator,
		Issuer:         issuer,
		Revocations:    revocations,
		Logger:         logger.Named("sessions"),
		BackendTimeout: appConfig.BackendTimeout,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.profiles, err = profiles.NewService(profiles.ServiceConfig{
		Database: app.db,
		Logger:   logger.Named("profiles"),
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.resolver, err = profiles.NewResolver(profiles.ResolverConfig{
		Fetcher:        app.profiles,
		Attempts:       appConfig.ProfileLookupAttempts,
		Delay:          appConfig.ProfileLookupDelay,
		AttemptTimeout: appConfig.BackendTimeout,
		Logger:         logger.Named("profiles"),
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if appConfig.DevIdentityEnabled() {
		app.devIdentities, err = auth.NewDevIdentityProvider(auth.DevIdentityConfig{
			ID:    appConfig.DevIdentityID,
			Email: appConfig.DevIdentityEmail,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		logger.Warn("dev identity provider enabled; sessions are issued without credentials")
	}

	app.diagnostics, err = diagnostics.NewReporter(diagnostics.Config{
		Sessions: app.sessions,
		Profiles: app.profiles,
		Logger:   logger.Named("diagnostics"),
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.cookieOptions = auth.CookieOptions{
		Name:     appConfig.SessionCookieName,
		Secure:   appConfig.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return app, nil
}

// serverDiagnostics returns the reporter only when the debug route is enabled.
func (a *application) serverDiagnostics(enabled bool) *diagnostics.Reporter {
	if !enabled {
		return nil
	}
	return a.diagnostics
}

func (a *application) newRevocationStore(ctx context.Context, appConfig config.AppConfig) (auth.RevocationStore, error) {
	if appConfig.RedisAddress == "" {
		a.logger.Info("session revocations kept in memory")
		return auth.NewMemoryRevocationStore(nil), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{appConfig.RedisAddress},
		Password: appConfig.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, appConfig.BackendTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", appConfig.RedisAddress, err)
	}
	a.redis = client
	a.logger.Info("session revocations stored in redis", zap.String("address", appConfig.RedisAddress))
	return auth.NewRedisRevocationStore(client)
}

func (a *application) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}

func commandContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}
