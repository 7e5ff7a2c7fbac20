package models

import (
	"net/url"
	"time"
)

// Profile is the directory record kept for every signed-in user.
type Profile struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Email       string    `db:"email" json:"email,omitempty"`
	LastSeen    time.Time `db:"last_seen" json:"last_seen"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EffectiveAvatarURL returns the stored avatar or a deterministic
// placeholder derived from the display name.
func (p Profile) EffectiveAvatarURL() string {
	if p.AvatarURL != "" {
		return p.AvatarURL
	}
	name := p.DisplayName
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name)
}

// DirectoryEvent is pushed over directory websocket connections.
type DirectoryEvent struct {
	Type     string    `json:"type"`
	Profiles []Profile `json:"profiles,omitempty"`
}
