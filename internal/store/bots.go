package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *SQLiteStore) CreateBot(ctx context.Context, bot *Bot) error {
	bot.ID = uuid.NewString()
	bot.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO bots (id, user_id, name, description, system_prompt, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		bot.ID, bot.UserID, bot.Name, bot.Description, bot.SystemPrompt, bot.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert bot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	var bot Bot
	err := s.q.QueryRowContext(ctx,
		"SELECT id, user_id, name, description, system_prompt, created_at FROM bots WHERE id = ?", id).
		Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.SystemPrompt, &bot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return &bot, nil
}

func (s *SQLiteStore) ListBotsByOwner(ctx context.Context, userID string) ([]Bot, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, user_id, name, description, system_prompt, created_at FROM bots WHERE user_id = ? ORDER BY created_at DESC, rowid DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bots: %w", err)
	}
	defer rows.Close()

	bots := []Bot{}
	for rows.Next() {
		var bot Bot
		if err := rows.Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.SystemPrompt, &bot.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// DeleteBot removes the bot; knowledge, messages and group links cascade.
func (s *SQLiteStore) DeleteBot(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM bots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsBotSharedWith reports whether userID is a member of a group the bot is linked into.
func (s *SQLiteStore) IsBotSharedWith(ctx context.Context, botID, userID string) (bool, error) {
	var shared bool
	err := s.q.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM group_bots gb
            JOIN group_members gm ON gm.group_id = gb.group_id
            WHERE gb.bot_id = ? AND gm.user_id = ?
        )`, botID, userID).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("failed to check bot membership: %w", err)
	}
	return shared, nil
}
