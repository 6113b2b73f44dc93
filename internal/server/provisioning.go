package server

import (
	"context"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"go.uber.org/zap"
)

// ProvisionProfiles inserts the default profile row whenever an identity signs in.
func ProvisionProfiles(sessions *auth.SessionStore, service *profiles.Service, logger *zap.Logger) {
	if sessions == nil || service == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions.OnChange(func(ctx context.Context, change auth.SessionChange) {
		if change.Event != auth.EventSignedIn {
			return
		}
		ensureProfile(ctx, service, logger, change.Session.Identity)
	})
}

func (h *httpHandler) provisionProfile(ctx context.Context, identity auth.Identity) {
	ensureProfile(ctx, h.profiles, h.logger, identity)
}

func ensureProfile(ctx context.Context, service *profiles.Service, logger *zap.Logger, identity auth.Identity) {
	if _, _, err := service.EnsureProfile(ctx, identity); err != nil {
		logger.Warn("profile provisioning failed", zap.String("identity_id", identity.ID), zap.Error(err))
	}
}
