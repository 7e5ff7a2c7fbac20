package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityVerifyRoundTrip(t *testing.T) {
	provider := NewJWTIdentityProvider("provider-key")

	assertion, err := SignAssertion("provider-key", Identity{
		UserID:      "alice",
		DisplayName: "Alice",
		AvatarURL:   "https://cdn.example.com/alice.png",
		Email:       "alice@example.com",
	}, time.Minute)
	require.NoError(t, err)

	identity, err := provider.Verify(context.Background(), assertion)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
	assert.Equal(t, "Alice", identity.DisplayName)
	assert.Equal(t, "https://cdn.example.com/alice.png", identity.AvatarURL)
	assert.Equal(t, "alice@example.com", identity.Email)
}

func TestIdentityVerifyRejectsWrongKey(t *testing.T) {
	provider := NewJWTIdentityProvider("provider-key")

	assertion, err := SignAssertion("other-key", Identity{UserID: "alice"}, time.Minute)
	require.NoError(t, err)

	_, err = provider.Verify(context.Background(), assertion)
	require.Error(t, err)
}

func TestIdentityVerifyRejectsExpired(t *testing.T) {
	provider := NewJWTIdentityProvider("provider-key")

	assertion, err := SignAssertion("provider-key", Identity{UserID: "alice"}, -time.Minute)
	require.NoError(t, err)

	_, err = provider.Verify(context.Background(), assertion)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestIdentityVerifyRequiresSubject(t *testing.T) {
	provider := NewJWTIdentityProvider("provider-key")

	assertion, err := SignAssertion("provider-key", Identity{DisplayName: "No Subject"}, time.Minute)
	require.NoError(t, err)

	_, err = provider.Verify(context.Background(), assertion)
	require.ErrorIs(t, err, ErrInvalidToken)
}
