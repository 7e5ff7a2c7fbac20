package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveAvatarURL(t *testing.T) {
	withAvatar := Profile{DisplayName: "Alice", AvatarURL: "https://cdn.example.com/a.png"}
	assert.Equal(t, "https://cdn.example.com/a.png", withAvatar.EffectiveAvatarURL())

	withoutAvatar := Profile{DisplayName: "Ada Lovelace"}
	assert.Equal(t, "https://ui-avatars.com/api/?name=Ada+Lovelace", withoutAvatar.EffectiveAvatarURL())

	anonymous := Profile{}
	assert.Equal(t, "https://ui-avatars.com/api/?name=User", anonymous.EffectiveAvatarURL())
}

func TestConversationMembership(t *testing.T) {
	conv := Conversation{ID: "alice:bob", User1ID: "alice", User2ID: "bob"}

	assert.True(t, conv.HasParticipant("alice"))
	assert.True(t, conv.HasParticipant("bob"))
	assert.False(t, conv.HasParticipant("carol"))

	assert.Equal(t, "bob", conv.PeerOf("alice"))
	assert.Equal(t, "alice", conv.PeerOf("bob"))
}

func TestMessageReactedBy(t *testing.T) {
	msg := Message{Reactions: map[string][]string{"👍": {"alice"}}}

	assert.True(t, msg.ReactedBy("👍", "alice"))
	assert.False(t, msg.ReactedBy("👍", "bob"))
	assert.False(t, msg.ReactedBy("❤️", "alice"))

	var empty Message
	assert.False(t, empty.ReactedBy("👍", "alice"))
}
