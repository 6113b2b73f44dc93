package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const noticeQueryParam = "notice"

var errResponseCommitted = errors.New("response already written")

type dashboardPayload struct {
	Dashboard   string `json:"dashboard"`
	Role        string `json:"role"`
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
	Notice      string `json:"notice,omitempty"`
}

// responseNavigator turns a flow navigation into a redirect on the current response.
type responseNavigator struct {
	c *gin.Context
}

func (n responseNavigator) Navigate(_ context.Context, target string, outcome routing.Outcome) error {
	location, err := withNotice(target, outcome.Notice)
	if err != nil {
		return err
	}
	if n.c.Writer.Written() {
		return errResponseCommitted
	}
	n.c.Redirect(http.StatusTemporaryRedirect, location)
	return nil
}

func (h *httpHandler) runFlow(c *gin.Context) (routing.Outcome, bool) {
	flow, err := routing.NewFlow(routing.FlowConfig{
		Profiles:       h.resolver,
		Navigator:      responseNavigator{c: c},
		SessionTimeout: h.sessionTimeout,
		Logger:         h.logger.With(zap.String("request_id", c.GetString(requestIDContextKey))),
	})
	if err != nil {
		h.logger.Error("failed to construct redirect flow", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flow_unavailable"})
		return routing.Outcome{}, false
	}

	token := h.sessions.TokenFromRequest(c.Request)
	outcome := flow.Run(c.Request.Context(), c.Request.URL.Path, func(ctx context.Context) *auth.Session {
		return h.sessions.GetSession(ctx, token)
	})

	if outcome.State == routing.StateLoginRequired && token != "" {
		auth.ClearSessionCookie(c.Writer, h.cookieOptions)
	}
	if outcome.NavigationErr != nil && !c.Writer.Written() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "navigation_failed"})
		return outcome, false
	}
	if outcome.Session != nil && outcome.Profile == nil {
		h.provisionProfile(c.Request.Context(), outcome.Session.Identity)
	}
	return outcome, outcome.State == routing.StateSettled
}

// handleRoleRouter sends the caller to the dashboard of their classified role.
func (h *httpHandler) handleRoleRouter(c *gin.Context) {
	h.runFlow(c)
}

// handleDashboard serves a dashboard only to the role it belongs to; every
// other caller is redirected by the flow.
func (h *httpHandler) handleDashboard(c *gin.Context) {
	outcome, settled := h.runFlow(c)
	if !settled || c.Writer.Written() {
		return
	}
	payload := dashboardPayload{
		Dashboard:  routing.CleanPath(c.Request.URL.Path),
		Role:       string(outcome.Role),
		IdentityID: outcome.Session.Identity.ID,
		Notice:     string(outcome.Notice),
	}
	payload.DisplayName = outcome.Session.Identity.Email
	if outcome.Profile != nil {
		payload.DisplayName = outcome.Profile.DisplayName()
	}
	c.JSON(http.StatusOK, payload)
}

func withNotice(target string, notice routing.Notice) (string, error) {
	if notice == routing.NoticeNone {
		return target, nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set(noticeQueryParam, string(notice))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
