package models

import "time"

// Conversation is the durable record of a one-to-one chat thread. Its id is
// derived deterministically from the unordered participant pair, so at most
// one conversation can exist per pair.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	User1ID   string    `db:"user1_id" json:"user1_id"`
	User2ID   string    `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Denormalized preview of the newest message, for list views only.
	LastMessageText   *string    `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageAt     *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessageSender *string    `db:"last_message_sender" json:"last_message_sender,omitempty"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// PeerOf returns the other participant for a given member.
func (c Conversation) PeerOf(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary is the API view of a conversation for one member.
type ConversationSummary struct {
	ConversationID string     `json:"conversation_id"`
	PeerID         string     `json:"peer_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastText       *string    `json:"last_text,omitempty"`
	LastAt         *time.Time `json:"last_at,omitempty"`
	LastSender     *string    `json:"last_sender,omitempty"`
}
