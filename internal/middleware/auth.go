package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"duochat/internal/auth"
	"duochat/internal/repositories"
)

// AuthMiddleware validates the Authorization header against the session
// manager and stores the authenticated user id on the context.
func AuthMiddleware(sessions *auth.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := sessions.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

const presenceTouchTimeout = 2 * time.Second

// Presence refreshes the caller's last_seen on every authenticated
// request. Best effort and off the request path; a failed touch never
// affects the response.
func Presence(profiles repositories.ProfileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetString("userID"); userID != "" {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), presenceTouchTimeout)
				defer cancel()
				_ = profiles.TouchLastSeen(ctx, userID)
			}()
		}
		c.Next()
	}
}
