package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"duochat/internal/models"
	"duochat/internal/repositories"
)

// DirectoryHandler serves the user directory.
type DirectoryHandler struct {
	profileRepo repositories.ProfileRepository
}

// NewDirectoryHandler builds a DirectoryHandler.
func NewDirectoryHandler(profileRepo repositories.ProfileRepository) *DirectoryHandler {
	return &DirectoryHandler{profileRepo: profileRepo}
}

// ListProfiles returns every known profile except the caller's own.
func (h *DirectoryHandler) ListProfiles(c *gin.Context) {
	userID := userIDFromContext(c)

	profiles, err := h.profileRepo.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "failed to load directory")
		return
	}

	others := make([]models.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == userID {
			continue
		}
		p.AvatarURL = p.EffectiveAvatarURL()
		others = append(others, p)
	}
	c.JSON(http.StatusOK, gin.H{"profiles": others})
}

// GetProfile returns a single profile.
func (h *DirectoryHandler) GetProfile(c *gin.Context) {
	profile, err := h.profileRepo.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, err, "failed to load profile")
		return
	}
	profile.AvatarURL = profile.EffectiveAvatarURL()
	c.JSON(http.StatusOK, profile)
}
