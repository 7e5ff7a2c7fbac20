package models

import "time"

// ReplyRef is a point-in-time quote of another message, captured when the
// reply is sent and never updated afterwards.
type ReplyRef struct {
	MessageID string `db:"reply_to_id" json:"message_id"`
	Snippet   string `db:"reply_to_snippet" json:"snippet"`
}

// Message is one entry of a conversation timeline. Body and reply reference
// are immutable after creation; reactions and read markers are mutated by
// participants; deletion is a tombstone.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Seq            int64     `db:"seq" json:"seq"`
	Body           string    `db:"body" json:"body"`
	Deleted        bool      `db:"deleted" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	ReplyTo *ReplyRef `json:"reply_to,omitempty"`

	// Reactions maps emoji to the set of user ids who applied it.
	Reactions map[string][]string `json:"reactions"`

	// ReadMarkers maps user id to the time that user last read the
	// message. Always contains at least the sender.
	ReadMarkers map[string]time.Time `json:"read_markers"`
}

// ReactedBy reports whether the user currently has the emoji applied.
func (m Message) ReactedBy(emoji, userID string) bool {
	for _, id := range m.Reactions[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// TimelineEvent is pushed over timeline websocket connections. Snapshots
// always carry the full ordered message list; clients replace, never merge.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// Timeline event types.
const (
	EventSnapshot     = "snapshot"
	EventDisconnected = "disconnected"
)
