package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"resonate/chat-service/internal/models"
)

// MessageRepository defines interactions for thread messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, threadID int, senderID int, content string) (models.Message, error)
	ListThreadMessages(ctx context.Context, threadID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, thread_id, sender_id, content, created_at`

// AppendMessage stores a message and bumps the parent thread's last_activity
// in the same transaction, so an inbox read never observes the bump without
// the message being retrievable.
func (r *MessageRepo) AppendMessage(ctx context.Context, threadID int, senderID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (thread_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING `+messageColumns, threadID, senderID, content).
		Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	// GREATEST keeps last_activity monotonic when two appends race and the
	// older-timestamp transaction commits last.
	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET last_activity = GREATEST(last_activity, $1) WHERE id=$2`, msg.CreatedAt, threadID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListThreadMessages returns a thread's messages in chronological order,
// message id breaking timestamp ties.
func (r *MessageRepo) ListThreadMessages(ctx context.Context, threadID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id=$1 ORDER BY created_at ASC, id ASC`, threadID)
	return msgs, err
}
