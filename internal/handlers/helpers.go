package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"duochat/internal/repositories"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

func auditUserID(c *gin.Context) *string {
	if id := userIDFromContext(c); id != "" {
		return &id
	}
	return nil
}

// statusForError maps the repository error taxonomy onto HTTP statuses.
// Anything unclassified is treated as transient.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repositories.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func abortWithError(c *gin.Context, err error, fallback string) {
	msg := fallback
	if repositories.IsPermanent(err) {
		msg = err.Error()
	}
	c.JSON(statusForError(err), gin.H{"error": msg})
}
