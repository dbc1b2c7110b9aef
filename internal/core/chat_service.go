package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/metrics"
	"aicaas.com/chatbot-backend/internal/store"
)

const (
	generalAssistantName = "AI Assistant"

	generalSystemPrompt = "You are AI-CaaS, a versatile AI assistant designed to be helpful, harmless, and honest. " +
		"Adapt your tone to the request: imaginative for creative writing, step-by-step for math and logic, " +
		"friendly for casual chat and precise for technical questions. " +
		"Format answers in Markdown and keep them concise but complete. " +
		"Only provide code when explicitly asked, and explain how it works."
)

type ChatRequest struct {
	UserID  string
	BotID   *string
	Message string
	Model   string
}

type ChatReply struct {
	Response  string `json:"response"`
	BotName   string `json:"bot_name"`
	Model     string `json:"model"`
	Remaining int    `json:"remaining"`
}

// ChatService runs the chat pipeline: access check, quota, user-turn log,
// retrieval, generation, assistant-turn log.
type ChatService struct {
	db           *store.SQLiteStore
	access       *AccessResolver
	quota        *QuotaEnforcer
	retriever    *Retriever
	dispatcher   *Dispatcher
	conversation *ConversationLogger
	embed        *auth.EmbedSigner
	defaultModel string
	metrics      *metrics.Metrics
	log          *zap.SugaredLogger
}

func NewChatService(db *store.SQLiteStore, access *AccessResolver, quota *QuotaEnforcer, retriever *Retriever,
	dispatcher *Dispatcher, conversation *ConversationLogger, embed *auth.EmbedSigner, defaultModel string,
	m *metrics.Metrics, log *zap.SugaredLogger) *ChatService {
	return &ChatService{
		db:           db,
		access:       access,
		quota:        quota,
		retriever:    retriever,
		dispatcher:   dispatcher,
		conversation: conversation,
		embed:        embed,
		defaultModel: defaultModel,
		metrics:      m,
		log:          log,
	}
}

// SendMessage authorizes before consuming quota, so a forbidden request
// costs nothing and touches no documents or providers. The user turn is
// logged before generation and survives a generation failure.
func (s *ChatService) SendMessage(ctx context.Context, req ChatRequest) (reply *ChatReply, err error) {
	defer func() { s.metrics.ChatRequests.WithLabelValues(outcome(err)).Inc() }()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperr.BadRequest("Message is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.defaultModel
	}

	bot, err := s.access.Authorize(ctx, req.UserID, req.BotID)
	if err != nil {
		return nil, err
	}
	_, remaining, err := s.quota.CheckAndConsume(ctx, req.UserID)
	if err != nil {
		if apperr.Is(err, apperr.CodeQuotaExceeded) {
			s.metrics.QuotaRejections.Inc()
		}
		return nil, err
	}

	botName, systemPrompt := generalAssistantName, generalSystemPrompt
	if bot != nil {
		botName = bot.Name
		if strings.TrimSpace(bot.SystemPrompt) != "" {
			systemPrompt = bot.SystemPrompt
		}
	}

	if err := s.conversation.LogTurn(ctx, req.UserID, req.BotID, store.RoleUser, message); err != nil {
		return nil, fmt.Errorf("failed to log user turn: %w", err)
	}

	knowledge := s.retriever.Retrieve(ctx, req.BotID, req.UserID, message)
	s.log.Infow("dispatching chat", "user_id", req.UserID, "bot", botName, "model", model)

	text, err := s.dispatcher.Dispatch(ctx, Prompt{System: systemPrompt, Context: knowledge, User: message}, model)
	if err != nil {
		s.log.Warnw("generation failed", "user_id", req.UserID, "model", model, "error", err)
		return nil, err
	}

	if err := s.conversation.LogTurn(ctx, req.UserID, req.BotID, store.RoleAI, text); err != nil {
		return nil, fmt.Errorf("failed to log assistant turn: %w", err)
	}
	return &ChatReply{Response: text, BotName: botName, Model: model, Remaining: remaining}, nil
}

// PublicChat serves the embeddable widget. The bot owner's quota and general
// knowledge stand in for the anonymous visitor, and nothing is logged.
func (s *ChatService) PublicChat(ctx context.Context, embedToken, message string) (reply *ChatReply, err error) {
	defer func() { s.metrics.ChatRequests.WithLabelValues(outcome(err)).Inc() }()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.BadRequest("Message is required")
	}
	if !s.embed.Enabled() {
		return nil, apperr.ProviderUnavailable("Public chat is not enabled")
	}
	botID, ownerID, err := s.embed.Verify(embedToken)
	if err != nil {
		return nil, apperr.Unauthenticated()
	}

	bot, err := s.access.RequireOwner(ctx, ownerID, botID)
	if err != nil {
		if apperr.Is(err, apperr.CodeForbidden) {
			return nil, apperr.Unauthenticated()
		}
		return nil, err
	}
	_, remaining, err := s.quota.CheckAndConsume(ctx, bot.UserID)
	if err != nil {
		if apperr.Is(err, apperr.CodeQuotaExceeded) {
			s.metrics.QuotaRejections.Inc()
		}
		return nil, err
	}

	systemPrompt := bot.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = generalSystemPrompt
	}
	knowledge := s.retriever.Retrieve(ctx, &bot.ID, bot.UserID, message)
	text, err := s.dispatcher.Dispatch(ctx, Prompt{System: systemPrompt, Context: knowledge, User: message}, s.defaultModel)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Response: text, BotName: bot.Name, Model: s.defaultModel, Remaining: remaining}, nil
}

func (s *ChatService) History(ctx context.Context, userID string, botID *string) ([]store.Message, error) {
	if _, err := s.access.Authorize(ctx, userID, botID); err != nil {
		return nil, err
	}
	return s.conversation.History(ctx, userID, botID)
}

// ClearHistory deletes a bot's shared conversation, or the caller's own
// general-assistant conversation when botID is nil.
func (s *ChatService) ClearHistory(ctx context.Context, userID string, botID *string) (int64, error) {
	if _, err := s.access.Authorize(ctx, userID, botID); err != nil {
		return 0, err
	}
	return s.conversation.Clear(ctx, userID, botID)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
