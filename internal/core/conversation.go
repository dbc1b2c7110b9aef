package core

import (
	"context"

	"aicaas.com/chatbot-backend/internal/store"
)

// ConversationLogger appends chat turns. Both turns of an exchange carry the
// same bot scope that was authorized, so history reads and clears see them.
type ConversationLogger struct {
	db *store.SQLiteStore
}

func NewConversationLogger(db *store.SQLiteStore) *ConversationLogger {
	return &ConversationLogger{db: db}
}

func (l *ConversationLogger) LogTurn(ctx context.Context, userID string, botID *string, role, content string) error {
	return l.db.CreateMessage(ctx, &store.Message{UserID: userID, BotID: botID, Role: role, Content: content})
}

func (l *ConversationLogger) History(ctx context.Context, userID string, botID *string) ([]store.Message, error) {
	return l.db.ListMessages(ctx, botID, userID)
}

func (l *ConversationLogger) Clear(ctx context.Context, userID string, botID *string) (int64, error) {
	return l.db.ClearMessages(ctx, botID, userID)
}
