package ws

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"duochat/internal/auth"
)

func newConnID() string {
	return uuid.NewString()
}

// bearerUser extracts and validates the session token from the
// Authorization header or, for browser websocket clients, the token query
// parameter.
func bearerUser(c *gin.Context, sessions *auth.SessionManager) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token")
	}
	return sessions.Validate(parts[1])
}
