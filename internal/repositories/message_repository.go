package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"duochat/internal/models"
)

// replySnippetLimit bounds the quoted text captured on a reply.
const replySnippetLimit = 160

// MessageRepository defines interactions for conversation timelines.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID, body string, replyTo *models.ReplyRef) (models.Message, error)
	List(ctx context.Context, conversationID string) ([]models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	ToggleReaction(ctx context.Context, conversationID, messageID, emoji, userID string) error
	MarkRead(ctx context.Context, conversationID, messageID, userID string) error
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	Delete(ctx context.Context, conversationID, messageID, userID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderID       string         `db:"sender_id"`
	Seq            int64          `db:"seq"`
	Body           string         `db:"body"`
	ReplyToID      sql.NullString `db:"reply_to_id"`
	ReplyToSnippet sql.NullString `db:"reply_to_snippet"`
	Deleted        bool           `db:"deleted"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Seq:            row.Seq,
		Body:           row.Body,
		Deleted:        row.Deleted,
		CreatedAt:      row.CreatedAt,
		Reactions:      map[string][]string{},
		ReadMarkers:    map[string]time.Time{},
	}
	if row.ReplyToID.Valid {
		msg.ReplyTo = &models.ReplyRef{MessageID: row.ReplyToID.String, Snippet: row.ReplyToSnippet.String}
	}
	return msg
}

// Append stores a message, marks it read by its sender and refreshes the
// conversation preview, all in one transaction. The reply snippet is
// captured here and never updated afterwards.
func (r *MessageRepo) Append(ctx context.Context, conversationID, senderID, body string, replyTo *models.ReplyRef) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, fmt.Errorf("%w: empty message body", ErrInvalidArgument)
	}

	var replyID, replySnippet sql.NullString
	if replyTo != nil {
		target, err := r.Get(ctx, replyTo.MessageID)
		if err != nil {
			return models.Message{}, err
		}
		if target.ConversationID != conversationID {
			return models.Message{}, fmt.Errorf("%w: reply target belongs to another conversation", ErrInvalidArgument)
		}
		replyID = sql.NullString{String: target.ID, Valid: true}
		replySnippet = sql.NullString{String: truncateRunes(target.Body, replySnippetLimit), Valid: true}
	}

	id := uuid.NewString()
	var row messageRow
	err := retryTransient(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := tx.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, body, reply_to_id, reply_to_snippet)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING id, conversation_id, sender_id, seq, body, reply_to_id, reply_to_snippet, deleted, created_at`,
			id, conversationID, senderID, body, replyID, replySnippet).StructScan(&row); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`,
			row.ID, senderID, row.CreatedAt); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_text=$2, last_message_at=$3, last_message_sender=$4 WHERE id=$1`,
			conversationID, truncateRunes(body, replySnippetLimit), row.CreatedAt, senderID); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return models.Message{}, err
	}

	msg := row.toModel()
	msg.ReadMarkers[senderID] = row.CreatedAt
	return msg, nil
}

// List returns the full ordered timeline snapshot, tombstones excluded.
func (r *MessageRepo) List(ctx context.Context, conversationID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, conversation_id, sender_id, seq, body, reply_to_id, reply_to_snippet, deleted, created_at
        FROM messages WHERE conversation_id=$1 AND deleted = FALSE ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	index := make(map[string]int, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		index[row.ID] = len(msgs)
		ids = append(ids, row.ID)
		msgs = append(msgs, row.toModel())
	}
	if len(ids) == 0 {
		return msgs, nil
	}

	type reactionRow struct {
		MessageID string `db:"message_id"`
		Emoji     string `db:"emoji"`
		UserID    string `db:"user_id"`
	}
	var reactions []reactionRow
	if err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, emoji, user_id FROM message_reactions
        WHERE message_id = ANY($1) ORDER BY created_at ASC`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, row := range reactions {
		if i, ok := index[row.MessageID]; ok {
			msgs[i].Reactions[row.Emoji] = append(msgs[i].Reactions[row.Emoji], row.UserID)
		}
	}

	type readRow struct {
		MessageID string    `db:"message_id"`
		UserID    string    `db:"user_id"`
		ReadAt    time.Time `db:"read_at"`
	}
	var reads []readRow
	if err := r.db.SelectContext(ctx, &reads, `SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, row := range reads {
		if i, ok := index[row.MessageID]; ok {
			msgs[i].ReadMarkers[row.UserID] = row.ReadAt
		}
	}

	return msgs, nil
}

// Get retrieves a single message without reaction or read-marker detail.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT id, conversation_id, sender_id, seq, body, reply_to_id, reply_to_snippet, deleted, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ToggleReaction flips the user's membership in the emoji's reactor set.
// One row per (message, emoji, user) makes the toggle an atomic set
// mutation: concurrent toggles by different users cannot lose each other.
func (r *MessageRepo) ToggleReaction(ctx context.Context, conversationID, messageID, emoji, userID string) error {
	if emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidArgument)
	}
	if err := r.ensureInConversation(ctx, conversationID, messageID); err != nil {
		return err
	}

	return retryTransient(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, emoji, user_id) VALUES ($1, $2, $3)
            ON CONFLICT (message_id, emoji, user_id) DO NOTHING`, messageID, emoji, userID)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted > 0 {
			return nil
		}
		_, err = r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND emoji=$2 AND user_id=$3`,
			messageID, emoji, userID)
		return err
	})
}

// MarkRead records that the user has seen the message. A user's marker
// never regresses.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, messageID, userID string) error {
	if err := r.ensureInConversation(ctx, conversationID, messageID); err != nil {
		return err
	}
	return retryTransient(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, NOW())
            ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = GREATEST(message_reads.read_at, EXCLUDED.read_at)`,
			messageID, userID)
		return err
	})
}

// MarkConversationRead stamps every message of the conversation as read by
// the user, the conversation-level variant of MarkRead.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	return retryTransient(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at)
            SELECT id, $2, NOW() FROM messages WHERE conversation_id=$1 AND deleted = FALSE
            ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = GREATEST(message_reads.read_at, EXCLUDED.read_at)`,
			conversationID, userID)
		return err
	})
}

// Delete tombstones a message. Only the sender may delete; once gone the
// message never reappears in the timeline.
func (r *MessageRepo) Delete(ctx context.Context, conversationID, messageID, userID string) error {
	msg, err := r.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return fmt.Errorf("%w: message belongs to another conversation", ErrInvalidArgument)
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%w: only the sender may delete a message", ErrPermissionDenied)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	return err
}

func (r *MessageRepo) ensureInConversation(ctx context.Context, conversationID, messageID string) error {
	msg, err := r.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID || msg.Deleted {
		return ErrMessageNotFound
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
