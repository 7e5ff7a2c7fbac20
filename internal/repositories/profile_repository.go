package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"duochat/internal/models"
)

// ProfileRepository abstracts the user directory.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile models.Profile) (models.Profile, error)
	Get(ctx context.Context, userID string) (models.Profile, error)
	List(ctx context.Context) ([]models.Profile, error)
	SetDisplayName(ctx context.Context, userID, displayName string) error
	TouchLastSeen(ctx context.Context, userID string) error
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Upsert creates the profile on first sign-in and refreshes it afterwards.
// last_seen never regresses.
func (r *ProfileRepo) Upsert(ctx context.Context, profile models.Profile) (models.Profile, error) {
	if profile.ID == "" {
		return models.Profile{}, fmt.Errorf("%w: empty profile id", ErrInvalidArgument)
	}
	var out models.Profile
	err := retryTransient(ctx, func() error {
		return r.db.QueryRowxContext(ctx, `INSERT INTO profiles (id, display_name, avatar_url, email, last_seen)
            VALUES ($1, $2, $3, $4, NOW())
            ON CONFLICT (id) DO UPDATE SET
                display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE profiles.display_name END,
                avatar_url = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url ELSE profiles.avatar_url END,
                email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE profiles.email END,
                last_seen = GREATEST(profiles.last_seen, NOW())
            RETURNING id, display_name, avatar_url, email, last_seen, created_at`,
			profile.ID, profile.DisplayName, profile.AvatarURL, profile.Email).StructScan(&out)
	})
	return out, err
}

// Get fetches one profile.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT id, display_name, avatar_url, email, last_seen, created_at
        FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

// List returns every known profile ordered by display name.
func (r *ProfileRepo) List(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT id, display_name, avatar_url, email, last_seen, created_at
        FROM profiles ORDER BY LOWER(display_name), id`)
	return profiles, err
}

// SetDisplayName updates the user's own display name.
func (r *ProfileRepo) SetDisplayName(ctx context.Context, userID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) < 2 {
		return fmt.Errorf("%w: display name too short", ErrInvalidArgument)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET display_name=$2 WHERE id=$1`, userID, displayName)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// TouchLastSeen advances last_seen; it never moves backwards.
func (r *ProfileRepo) TouchLastSeen(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE profiles SET last_seen = GREATEST(last_seen, NOW()) WHERE id=$1`, userID)
	return err
}
