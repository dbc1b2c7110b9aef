package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO messages (id, user_id, bot_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.UserID, nullString(msg.BotID), msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation oldest first. A bot conversation is
// shared by everyone allowed to chat with the bot; the general assistant
// conversation belongs to userID alone.
func (s *SQLiteStore) ListMessages(ctx context.Context, botID *string, userID string) ([]Message, error) {
	const cols = "SELECT id, user_id, bot_id, role, content, created_at FROM messages "
	query, args := cols+"WHERE bot_id IS NULL AND user_id = ? ORDER BY created_at, rowid", []any{userID}
	if botID != nil {
		query, args = cols+"WHERE bot_id = ? ORDER BY created_at, rowid", []any{*botID}
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var bot sql.NullString
		if err := rows.Scan(&msg.ID, &msg.UserID, &bot, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.BotID = stringPtr(bot)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ClearMessages deletes a conversation using the same scope as ListMessages.
func (s *SQLiteStore) ClearMessages(ctx context.Context, botID *string, userID string) (int64, error) {
	query, args := "DELETE FROM messages WHERE bot_id IS NULL AND user_id = ?", []any{userID}
	if botID != nil {
		query, args = "DELETE FROM messages WHERE bot_id = ?", []any{*botID}
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return res.RowsAffected()
}
