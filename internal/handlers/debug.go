package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"duochat/internal/models"
	"duochat/internal/render"
	"duochat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints. They are off unless the
// config enables them explicitly.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), auditUserID(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Renders a canned timeline so markup changes can be eyeballed
	// without seeding the database.
	router.GET("/debug/render-sample", func(c *gin.Context) {
		now := time.Now()
		msgs := []models.Message{
			{ID: "m1", SenderID: "peer", Seq: 1, Body: "hello from yesterday", CreatedAt: now.Add(-26 * time.Hour)},
			{ID: "m2", SenderID: "me", Seq: 2, Body: "check https://example.com & <b>escaping</b>", CreatedAt: now.Add(-time.Hour),
				Reactions: map[string][]string{"👍": {"peer"}}},
			{ID: "m3", SenderID: "peer", Seq: 3, Body: "sounds good", CreatedAt: now,
				ReplyTo: &models.ReplyRef{MessageID: "m2", Snippet: "check https://example.com"}},
		}
		viewer := render.Viewer{UserID: "me", Now: now}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(render.TimelineHTML(msgs, viewer)))
	})
}
