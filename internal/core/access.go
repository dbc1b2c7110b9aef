package core

import (
	"context"
	"errors"
	"fmt"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/store"
)

// AccessResolver is the single place that decides who may address a bot.
// Chat, knowledge listing, uploads and history all go through Authorize.
type AccessResolver struct {
	db *store.SQLiteStore
}

func NewAccessResolver(db *store.SQLiteStore) *AccessResolver {
	return &AccessResolver{db: db}
}

// Authorize allows the general assistant (nil botID) unconditionally. For a
// bot it allows the owner, then any member of a group the bot is shared
// into. It returns the bot so callers do not look it up twice.
func (r *AccessResolver) Authorize(ctx context.Context, userID string, botID *string) (*store.Bot, error) {
	if botID == nil {
		return nil, nil
	}
	bot, err := r.lookup(ctx, *botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID == userID {
		return bot, nil
	}
	shared, err := r.db.IsBotSharedWith(ctx, bot.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot access: %w", err)
	}
	if !shared {
		return nil, apperr.Forbidden("You do not have permission to access this bot")
	}
	return bot, nil
}

// RequireOwner admits only the bot's owner. Group membership never grants
// ownership rights.
func (r *AccessResolver) RequireOwner(ctx context.Context, userID, botID string) (*store.Bot, error) {
	bot, err := r.lookup(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, apperr.Forbidden("Only the bot owner can do this")
	}
	return bot, nil
}

func (r *AccessResolver) lookup(ctx context.Context, botID string) (*store.Bot, error) {
	bot, err := r.db.GetBot(ctx, botID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Bot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bot: %w", err)
	}
	return bot, nil
}
