package timeline

import (
	"context"

	"duochat/internal/models"
	"duochat/internal/repositories"
)

// RepoStore adapts the repositories to the broker's Store interface.
type RepoStore struct {
	Messages repositories.MessageRepository
	Profiles repositories.ProfileRepository
}

func (s RepoStore) TimelineSnapshot(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.Messages.List(ctx, conversationID)
}

func (s RepoStore) DirectorySnapshot(ctx context.Context) ([]models.Profile, error) {
	return s.Profiles.List(ctx)
}
