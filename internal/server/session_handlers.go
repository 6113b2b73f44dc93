package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/gin-gonic/gin"
)

const (
	sessionEventReady     = "ready"
	sessionEventHeartbeat = "heartbeat"
	heartbeatInterval     = 25 * time.Second
)

type identityPayload struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

type profilePayload struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  *string `json:"full_name"`
	Role      string  `json:"role"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

type sessionPayload struct {
	Authenticated bool             `json:"authenticated"`
	Identity      *identityPayload `json:"identity,omitempty"`
	ExpiresAt     int64            `json:"expires_at,omitempty"`
	Profile       *profilePayload  `json:"profile"`
	Role          string           `json:"role,omitempty"`
	Target        string           `json:"target"`
	Notice        string           `json:"notice,omitempty"`
}

type sessionEventPayload struct {
	Event      string `json:"event"`
	IdentityID string `json:"identity_id"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// handleSession reports the caller's session, profile, classified role and
// the dashboard the role router would pick.
func (h *httpHandler) handleSession(c *gin.Context) {
	session := h.sessions.SessionFromRequest(c.Request)
	if session == nil {
		c.JSON(http.StatusOK, sessionPayload{
			Authenticated: false,
			Target:        routing.LoginPath,
		})
		return
	}

	resolution := h.resolver.Resolve(c.Request.Context(), session.Identity.ID)
	payload := sessionPayload{
		Authenticated: true,
		Identity: &identityPayload{
			ID:             session.Identity.ID,
			Email:          session.Identity.Email,
			EmailConfirmed: session.Identity.EmailConfirmed(),
		},
		ExpiresAt: session.ExpiresAt.Unix(),
		Profile:   newProfilePayload(resolution.Profile),
		Role:      string(resolution.Role()),
		Target:    routing.TargetFor(resolution.Role()),
	}
	if !resolution.Found() {
		payload.Notice = string(routing.NoticeProfileUnavailable)
	}
	c.JSON(http.StatusOK, payload)
}

// handleSessionEvents streams sign-in, refresh and sign-out events for the
// caller's identity until the client disconnects.
func (h *httpHandler) handleSessionEvents(c *gin.Context) {
	session := sessionFromContext(c)
	ctx := c.Request.Context()
	events, unsubscribe := h.sessions.Subscribe(ctx, session.Identity.ID)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(sessionEventReady, sessionEventPayload{
		Event:      sessionEventReady,
		IdentityID: session.Identity.ID,
		ExpiresAt:  session.ExpiresAt.Unix(),
		Timestamp:  h.clock().Unix(),
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(change.Event), newSessionEventPayload(change))
			return change.Event != auth.EventSignedOut
		case <-heartbeat.C:
			c.SSEvent(sessionEventHeartbeat, sessionEventPayload{
				Event:      sessionEventHeartbeat,
				IdentityID: session.Identity.ID,
				Timestamp:  h.clock().Unix(),
			})
			return true
		}
	})
}

func newSessionEventPayload(change auth.SessionChange) sessionEventPayload {
	payload := sessionEventPayload{
		Event:      string(change.Event),
		IdentityID: change.Session.Identity.ID,
		Timestamp:  change.Timestamp.Unix(),
	}
	if change.Event != auth.EventSignedOut {
		payload.ExpiresAt = change.Session.ExpiresAt.Unix()
	}
	return payload
}

func newProfilePayload(profile *profiles.Profile) *profilePayload {
	if profile == nil {
		return nil
	}
	return &profilePayload{
		ID:        profile.ID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		Role:      string(profile.ClassifiedRole()),
		CreatedAt: profile.CreatedAt.Unix(),
		UpdatedAt: profile.UpdatedAt.Unix(),
	}
}
