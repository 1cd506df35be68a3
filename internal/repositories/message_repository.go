package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"nexus-chat/internal/models"
)

const messageColumns = `id, thread_id, sender_id, body, created_at`

// MessageRepository defines interactions with a thread's append-only message
// log.
type MessageRepository interface {
	Append(ctx context.Context, threadID, senderID int, text string) (models.Message, error)
	ListByThread(ctx context.Context, threadID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a message and bumps the thread's activity timestamp in one
// transaction. Commit order assigns the serial id, which defines message
// order within the thread.
func (r *MessageRepo) Append(ctx context.Context, threadID, senderID int, text string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO thread_messages (thread_id, sender_id, body) VALUES ($1, $2, $3)
         RETURNING `+messageColumns,
		threadID, senderID, text).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = NOW() WHERE id=$1`, threadID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListByThread returns the full message history in append order.
func (r *MessageRepo) ListByThread(ctx context.Context, threadID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM thread_messages WHERE thread_id=$1 ORDER BY id ASC`,
		threadID)
	return msgs, err
}
