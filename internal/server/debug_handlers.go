package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/gin-gonic/gin"
)

// handleDiagnostics reports how the caller's cookie would move through the
// role router. The path query parameter selects the page being diagnosed.
func (h *httpHandler) handleDiagnostics(c *gin.Context) {
	currentPath := c.Query("path")
	if currentPath == "" {
		currentPath = routing.RoleRouterPath
	}
	report := h.diagnostics.ReportToken(c.Request.Context(), h.sessions.TokenFromRequest(c.Request), currentPath)
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, report)
}
