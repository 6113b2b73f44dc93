package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type devLoginRequest struct {
	Email string `json:"email"`
}

type sessionTokenPayload struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	ExpiresAt  int64  `json:"expires_at"`
	ExpiresIn  int64  `json:"expires_in"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (h *httpHandler) handleDevLogin(c *gin.Context) {
	var request devLoginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	identity := h.devIdentities.Identity(request.Email)
	session, err := h.sessions.SignIn(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("dev sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign_in_failed"})
		return
	}
	h.logger.Warn("dev identity signed in", zap.String("identity_id", identity.ID), zap.String("email", identity.Email))

	now := h.clock()
	auth.SetSessionCookie(c.Writer, session, h.cookieOptions, now)
	c.JSON(http.StatusOK, newSessionTokenPayload(session, now, routing.RoleRouterPath))
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	current := sessionFromContext(c)
	refreshed, err := h.sessions.Refresh(c.Request.Context(), *current)
	if err != nil {
		h.logger.Error("session refresh failed", zap.String("identity_id", current.Identity.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh_failed"})
		return
	}
	now := h.clock()
	auth.SetSessionCookie(c.Writer, refreshed, h.cookieOptions, now)
	c.JSON(http.StatusOK, newSessionTokenPayload(refreshed, now, ""))
}

// handleSignOut always clears the cookie; a revocation failure is reported so
// the client knows the token may still be honored until it expires.
func (h *httpHandler) handleSignOut(c *gin.Context) {
	session := h.sessions.SessionFromRequest(c.Request)
	auth.ClearSessionCookie(c.Writer, h.cookieOptions)
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.sessions.SignOut(c.Request.Context(), *session); err != nil {
		h.logger.Error("session revocation failed", zap.String("identity_id", session.Identity.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sign_out_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func newSessionTokenPayload(session auth.Session, now time.Time, redirectTo string) sessionTokenPayload {
	return sessionTokenPayload{
		IdentityID: session.Identity.ID,
		Email:      strings.ToLower(session.Identity.Email),
		ExpiresAt:  session.ExpiresAt.Unix(),
		ExpiresIn:  int64(session.ExpiresIn(now).Seconds()),
		RedirectTo: redirectTo,
	}
}
