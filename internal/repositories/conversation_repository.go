package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"duochat/internal/models"
)

// conversationIDSeparator joins the sorted participant pair into the
// canonical conversation id. Identifiers containing it are rejected, which
// keeps the derivation unambiguous.
const conversationIDSeparator = ":"

// ResolveConversationID derives the canonical conversation id for an
// unordered pair of user ids. Pure and symmetric:
// ResolveConversationID(a, b) == ResolveConversationID(b, a).
func ResolveConversationID(userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", fmt.Errorf("%w: empty participant id", ErrInvalidArgument)
	}
	if userA == userB {
		return "", fmt.Errorf("%w: participants must be distinct", ErrInvalidArgument)
	}
	if strings.Contains(userA, conversationIDSeparator) || strings.Contains(userB, conversationIDSeparator) {
		return "", fmt.Errorf("%w: participant id contains reserved separator", ErrInvalidArgument)
	}
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + conversationIDSeparator + pair[1], nil
}

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGet(ctx context.Context, userA, userB string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGet returns the conversation for the pair, creating it if absent.
// Creation is write-if-absent keyed by the deterministic id, so concurrent
// callers converge on a single record.
func (r *ConversationRepo) CreateOrGet(ctx context.Context, userA, userB string) (models.Conversation, error) {
	id, err := ResolveConversationID(userA, userB)
	if err != nil {
		return models.Conversation{}, err
	}
	pair := []string{userA, userB}
	sort.Strings(pair)

	_, err = r.db.ExecContext(ctx, `INSERT INTO conversations (id, user1_id, user2_id) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING`, id, pair[0], pair[1])
	if err != nil {
		return models.Conversation{}, err
	}
	return r.Get(ctx, id)
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, user1_id, user2_id, created_at,
        last_message_text, last_message_at, last_message_sender
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations, newest activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, user1_id, user2_id, created_at,
        last_message_text, last_message_at, last_message_sender
        FROM conversations WHERE user1_id=$1 OR user2_id=$1
        ORDER BY COALESCE(last_message_at, created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var conv models.Conversation
		if err := rows.StructScan(&conv); err != nil {
			return nil, err
		}
		result = append(result, models.ConversationSummary{
			ConversationID: conv.ID,
			PeerID:         conv.PeerOf(userID),
			CreatedAt:      conv.CreatedAt,
			LastText:       conv.LastMessageText,
			LastAt:         conv.LastMessageAt,
			LastSender:     conv.LastMessageSender,
		})
	}
	return result, rows.Err()
}
