package ws

import "time"

// ConnInfo is the per-connection metadata captured at handshake time and
// attached to lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
