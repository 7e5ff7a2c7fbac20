package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"duochat/internal/auth"
	"duochat/internal/models"
	"duochat/internal/repositories"
	"duochat/internal/telemetry"
	"duochat/internal/timeline"
)

// AuthHandler owns the local access gate and the sign-in flow.
type AuthHandler struct {
	gate        *auth.Gate
	identity    auth.IdentityProvider
	sessions    *auth.SessionManager
	profileRepo repositories.ProfileRepository
	broker      *timeline.Broker
	audit       *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(gate *auth.Gate, identity auth.IdentityProvider, sessions *auth.SessionManager, profileRepo repositories.ProfileRepository, broker *timeline.Broker, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{
		gate:        gate,
		identity:    identity,
		sessions:    sessions,
		profileRepo: profileRepo,
		broker:      broker,
		audit:       audit,
	}
}

// CheckGate compares the submitted secret against the configured gate. The
// accepted flag is meant to be persisted client-side so the gate is skipped
// on return visits; it is a speed-bump, not an access control.
func (h *AuthHandler) CheckGate(c *gin.Context) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.gate.Check(req.Secret) {
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"passed": true})
}

// StartSession verifies a federated sign-in assertion, mirrors the asserted
// identity into the profile directory and issues a session token.
func (h *AuthHandler) StartSession(c *gin.Context) {
	var req struct {
		Assertion string `json:"assertion" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.identity.Verify(c.Request.Context(), req.Assertion)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in failed"})
		return
	}

	profile, err := h.profileRepo.Upsert(c.Request.Context(), models.Profile{
		ID:          identity.UserID,
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
		Email:       identity.Email,
	})
	if err != nil {
		abortWithError(c, err, "failed to store profile")
		return
	}
	h.broker.InvalidateDirectory(c.Request.Context())

	token, err := h.sessions.Issue(profile.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "session started", requestIDFromContext(c), &profile.ID)
	profile.AvatarURL = profile.EffectiveAvatarURL()
	c.JSON(http.StatusOK, gin.H{"token": token, "profile": profile})
}

// UpdateDisplayName lets the signed-in user rename themselves.
func (h *AuthHandler) UpdateDisplayName(c *gin.Context) {
	userID := userIDFromContext(c)

	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.profileRepo.SetDisplayName(c.Request.Context(), userID, req.DisplayName); err != nil {
		abortWithError(c, err, "failed to update display name")
		return
	}
	h.broker.InvalidateDirectory(c.Request.Context())
	c.Status(http.StatusNoContent)
}
