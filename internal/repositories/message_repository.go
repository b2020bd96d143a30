package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"school-chat/internal/models"
)

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	// MutateMessage applies fn to the stored message and persists the result in one
	// transaction, holding the row lock for the duration.
	MutateMessage(ctx context.Context, messageID int, fn func(*models.Message) error) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, sender_id, content, file_url, file_type, is_deleted, edit_history, created_at`

// CreateMessage persists a message and returns it with its id and timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (group_id, sender_id, content, file_url, file_type)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		msg.GroupID, msg.SenderID, msg.Content, msg.FileURL, msg.FileType).StructScan(&out)
	return out, err
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MutateMessage locks the row, applies fn, and writes content, tombstone and history together.
func (r *MessageRepo) MutateMessage(ctx context.Context, messageID int, fn func(*models.Message) error) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1 FOR UPDATE`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrMessageNotFound
		}
		return models.Message{}, err
	}
	if err = fn(&msg); err != nil {
		return models.Message{}, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chat_messages SET content=$2, is_deleted=$3, edit_history=$4 WHERE id=$1`,
		msg.ID, msg.Content, msg.IsDeleted, msg.EditHistory); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListGroupMessages returns messages ordered by creation, tombstones included.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages WHERE group_id=$1 ORDER BY created_at ASC, id ASC`, groupID)
	return msgs, err
}
