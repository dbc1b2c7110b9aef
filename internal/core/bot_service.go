package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/store"
)

const (
	botCreationCost = 50
	// Pro users pay 70% of the creation cost.
	proCostPercent = 70
)

type BotService struct {
	db        *store.SQLiteStore
	access    *AccessResolver
	knowledge *KnowledgeService
	embed     *auth.EmbedSigner
	now       func() time.Time
}

func NewBotService(db *store.SQLiteStore, access *AccessResolver, knowledge *KnowledgeService,
	embed *auth.EmbedSigner, now func() time.Time) *BotService {
	if now == nil {
		now = time.Now
	}
	return &BotService{db: db, access: access, knowledge: knowledge, embed: embed, now: now}
}

func BotCost(plan string) int {
	if plan == store.PlanPro {
		return botCreationCost * proCostPercent / 100
	}
	return botCreationCost
}

// Create debits the creation cost and inserts the bot in one transaction;
// either both happen or neither does.
func (s *BotService) Create(ctx context.Context, userID, name, description, systemPrompt string) (*store.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("Bot name is required")
	}
	bot := &store.Bot{UserID: userID, Name: name, Description: description, SystemPrompt: systemPrompt}

	err := s.db.InTx(ctx, func(tx *store.SQLiteStore) error {
		user, err := tx.GetUserByID(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		if err != nil {
			return err
		}
		cost := BotCost(EffectivePlan(user, s.now()))
		ok, err := tx.DebitCredits(ctx, userID, cost)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientCredits(cost, user.Credits)
		}
		if err := tx.CreateBot(ctx, bot); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Conflict("You already have a bot with this name")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bot, nil
}

func (s *BotService) List(ctx context.Context, userID string) ([]store.Bot, error) {
	return s.db.ListBotsByOwner(ctx, userID)
}

func (s *BotService) Get(ctx context.Context, userID, botID string) (*store.Bot, error) {
	return s.access.Authorize(ctx, userID, &botID)
}

// Delete removes the bot with its knowledge, every uploader's stored files
// included. Messages and group links cascade.
func (s *BotService) Delete(ctx context.Context, userID, botID string) error {
	if _, err := s.access.RequireOwner(ctx, userID, botID); err != nil {
		return err
	}
	var removed []store.KnowledgeEntry
	err := s.db.InTx(ctx, func(tx *store.SQLiteStore) error {
		var err error
		if removed, err = tx.DeleteAllBotKnowledge(ctx, botID); err != nil {
			return err
		}
		return tx.DeleteBot(ctx, botID)
	})
	if err != nil {
		return err
	}
	s.knowledge.removeBlobs(ctx, removed)
	return nil
}

// EmbedToken mints a widget token for a bot the caller owns.
func (s *BotService) EmbedToken(ctx context.Context, userID, botID string) (string, error) {
	bot, err := s.access.RequireOwner(ctx, userID, botID)
	if err != nil {
		return "", err
	}
	token, err := s.embed.Mint(bot.ID, bot.UserID)
	if errors.Is(err, auth.ErrEmbedDisabled) {
		return "", apperr.ProviderUnavailable("Public chat is not enabled")
	}
	return token, err
}
