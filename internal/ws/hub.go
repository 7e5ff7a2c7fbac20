package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"duochat/internal/observability"
)

// Room kinds, used for metrics and event routing.
const (
	KindTimeline  = "timeline"
	KindDirectory = "directory"
)

// Hub tracks active websocket connections per timeline room and for the
// directory. Snapshot delivery itself runs on each connection's broker
// subscription; the hub owns bookkeeping and connection events.
type Hub struct {
	timelineRooms  map[string]map[*websocket.Conn]ConnInfo
	directoryConns map[*websocket.Conn]ConnInfo
	mu             sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		timelineRooms:  make(map[string]map[*websocket.Conn]ConnInfo),
		directoryConns: make(map[*websocket.Conn]ConnInfo),
	}
}

// AddTimelineClient registers a connection in a conversation room.
func (h *Hub) AddTimelineClient(conversationID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.timelineRooms[conversationID]; !ok {
		h.timelineRooms[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.timelineRooms[conversationID][conn] = info
}

// RemoveTimelineClient removes a connection from a conversation room.
func (h *Hub) RemoveTimelineClient(conversationID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.timelineRooms[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.timelineRooms, conversationID)
		}
	}
}

// AddDirectoryClient registers a directory connection.
func (h *Hub) AddDirectoryClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.directoryConns[conn] = info
}

// RemoveDirectoryClient removes a directory connection.
func (h *Hub) RemoveDirectoryClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.directoryConns, conn)
}

// TimelineClients reports how many connections watch a conversation.
func (h *Hub) TimelineClients(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.timelineRooms[conversationID])
}

// PublishConnEvent emits a websocket lifecycle event over AMQP and bumps
// the matching counter.
func PublishConnEvent(ctx context.Context, kind, event, resourceID string, info ConnInfo, reason string) {
	observability.IncWSEvent(kind, event)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
