package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"duochat/internal/auth"
	"duochat/internal/models"
	"duochat/internal/observability"
	"duochat/internal/timeline"
)

// DirectoryWSHandler streams full profile-directory snapshots to any
// signed-in user.
type DirectoryWSHandler struct {
	hub      *Hub
	broker   *timeline.Broker
	sessions *auth.SessionManager
}

// NewDirectoryWSHandler constructs a DirectoryWSHandler.
func NewDirectoryWSHandler(hub *Hub, broker *timeline.Broker, sessions *auth.SessionManager) *DirectoryWSHandler {
	return &DirectoryWSHandler{hub: hub, broker: broker, sessions: sessions}
}

// Handle upgrades the connection and subscribes it to directory snapshots.
func (h *DirectoryWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("duochat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := bearerUser(c, h.sessions)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddDirectoryClient(conn, info)
	observability.IncWSActive(KindDirectory)
	PublishConnEvent(ctx, KindDirectory, "ws_connect", "", info, "")

	sub := h.broker.SubscribeDirectory(
		func(profiles []models.Profile) {
			event := models.DirectoryEvent{Type: models.EventSnapshot, Profiles: profiles}
			if err := conn.WriteJSON(event); err != nil {
				conn.Close()
			}
		},
		func(err error) {
			event := models.DirectoryEvent{Type: models.EventDisconnected}
			_ = conn.WriteJSON(event)
			PublishConnEvent(ctx, KindDirectory, "ws_error", "", info, err.Error())
			conn.Close()
		},
	)

	go func() {
		var closeReason string
		defer func() {
			sub.Cancel()
			h.hub.RemoveDirectoryClient(conn)
			observability.DecWSActive(KindDirectory)
			PublishConnEvent(ctx, KindDirectory, "ws_disconnect", "", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					PublishConnEvent(ctx, KindDirectory, "ws_error", "", info, closeReason)
				}
				return
			}
		}
	}()
}
