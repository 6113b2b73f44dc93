package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	session := sessionFromContext(c)
	profile, err := h.profiles.FetchProfile(c.Request.Context(), session.Identity.ID)
	if err != nil {
		h.logger.Error("profile lookup failed", zap.String("identity_id", session.Identity.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile_unavailable"})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	session := sessionFromContext(c)
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.FullName == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), session.Identity.ID, profiles.ProfileUpdate{
		FullName: request.FullName,
	})
	if errors.Is(err, profiles.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("profile update failed", zap.String("identity_id", session.Identity.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_update_failed"})
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleAssignRole(c *gin.Context) {
	var request assignRoleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	role, err := roles.Parse(request.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
		return
	}

	targetID := c.Param("id")
	profile, err := h.profiles.AssignRole(c.Request.Context(), targetID, role)
	switch {
	case errors.Is(err, profiles.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	case errors.Is(err, profiles.ErrMissingIdentityID), errors.Is(err, profiles.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case err != nil:
		h.logger.Error("role assignment failed", zap.String("target_id", targetID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "role_assignment_failed"})
		return
	}

	h.logger.Info("role assigned by admin",
		zap.String("admin_id", sessionFromContext(c).Identity.ID),
		zap.String("target_id", targetID),
		zap.String("role", string(role)),
	)
	c.JSON(http.StatusOK, newProfilePayload(profile))
}
