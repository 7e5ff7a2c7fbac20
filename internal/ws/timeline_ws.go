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
	"duochat/internal/repositories"
	"duochat/internal/timeline"
)

// TimelineWSHandler streams full timeline snapshots to conversation
// members.
type TimelineWSHandler struct {
	hub      *Hub
	broker   *timeline.Broker
	convRepo repositories.ConversationRepository
	sessions *auth.SessionManager
}

// NewTimelineWSHandler constructs a TimelineWSHandler.
func NewTimelineWSHandler(hub *Hub, broker *timeline.Broker, convRepo repositories.ConversationRepository, sessions *auth.SessionManager) *TimelineWSHandler {
	return &TimelineWSHandler{hub: hub, broker: broker, convRepo: convRepo, sessions: sessions}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, subscribes it to the conversation's
// snapshot stream and tears the subscription down before the socket closes.
func (h *TimelineWSHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("duochat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := bearerUser(c, h.sessions)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
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
	h.hub.AddTimelineClient(conversationID, conn, info)
	observability.IncWSActive(KindTimeline)
	PublishConnEvent(ctx, KindTimeline, "ws_connect", conversationID, info, "")

	// Snapshot and error callbacks run on the subscription goroutine, so
	// writes to the socket are already serialized. A write failure closes
	// the socket; the read pump then cancels the subscription.
	sub := h.broker.SubscribeTimeline(conversationID,
		func(msgs []models.Message) {
			event := models.TimelineEvent{Type: models.EventSnapshot, Messages: msgs}
			if err := conn.WriteJSON(event); err != nil {
				conn.Close()
			}
		},
		func(err error) {
			event := models.TimelineEvent{Type: models.EventDisconnected, Reason: err.Error()}
			_ = conn.WriteJSON(event)
			PublishConnEvent(ctx, KindTimeline, "ws_error", conversationID, info, err.Error())
			conn.Close()
		},
	)

	go func() {
		var closeReason string
		defer func() {
			sub.Cancel()
			h.hub.RemoveTimelineClient(conversationID, conn)
			observability.DecWSActive(KindTimeline)
			PublishConnEvent(ctx, KindTimeline, "ws_disconnect", conversationID, info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					PublishConnEvent(ctx, KindTimeline, "ws_error", conversationID, info, closeReason)
				}
				return
			}
		}
	}()
}
