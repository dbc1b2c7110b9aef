package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const knowledgeColumns = "k.id, k.user_id, k.bot_id, k.filename, k.location, k.file_size, k.created_at"

func scanKnowledge(row interface{ Scan(...any) error }, extra ...any) (*KnowledgeEntry, error) {
	var entry KnowledgeEntry
	var botID sql.NullString
	dest := append([]any{&entry.ID, &entry.UserID, &botID, &entry.Filename, &entry.Location, &entry.FileSize, &entry.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	entry.BotID = stringPtr(botID)
	return &entry, nil
}

func (s *SQLiteStore) queryKnowledge(ctx context.Context, query string, args ...any) ([]KnowledgeEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer rows.Close()

	entries := []KnowledgeEntry{}
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) CreateKnowledge(ctx context.Context, entry *KnowledgeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO knowledge_entries (id, user_id, bot_id, filename, location, file_size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.UserID, nullString(entry.BotID), entry.Filename, entry.Location, entry.FileSize, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetKnowledge(ctx context.Context, id string) (*KnowledgeEntry, error) {
	entry, err := scanKnowledge(s.q.QueryRowContext(ctx,
		"SELECT "+knowledgeColumns+" FROM knowledge_entries k WHERE k.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get knowledge entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) ListKnowledgeByUploader(ctx context.Context, userID string) ([]KnowledgeEntry, error) {
	return s.queryKnowledge(ctx,
		"SELECT "+knowledgeColumns+" FROM knowledge_entries k WHERE k.user_id = ? ORDER BY k.created_at DESC, k.rowid DESC",
		userID)
}

// ListKnowledgeForBot returns the bot's entries with their uploader, newest first.
func (s *SQLiteStore) ListKnowledgeForBot(ctx context.Context, botID string) ([]KnowledgeWithUploader, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT `+knowledgeColumns+`, u.email, u.full_name
        FROM knowledge_entries k JOIN users u ON u.id = k.user_id
        WHERE k.bot_id = ?
        ORDER BY k.created_at DESC, k.rowid DESC`, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot knowledge: %w", err)
	}
	defer rows.Close()

	entries := []KnowledgeWithUploader{}
	for rows.Next() {
		var email, name string
		entry, err := scanKnowledge(rows, &email, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entries = append(entries, KnowledgeWithUploader{KnowledgeEntry: *entry, UploaderEmail: email, UploaderName: name})
	}
	return entries, rows.Err()
}

// RecentKnowledge selects the newest entries visible to a chat: the bot's own
// entries plus general entries of the tenant. With a nil bot only general
// entries are considered.
func (s *SQLiteStore) RecentKnowledge(ctx context.Context, botID *string, tenantID string, limit int) ([]KnowledgeEntry, error) {
	if botID == nil {
		return s.queryKnowledge(ctx, `
            SELECT `+knowledgeColumns+` FROM knowledge_entries k
            WHERE k.bot_id IS NULL AND k.user_id = ?
            ORDER BY k.created_at DESC, k.rowid DESC LIMIT ?`, tenantID, limit)
	}
	return s.queryKnowledge(ctx, `
        SELECT `+knowledgeColumns+` FROM knowledge_entries k
        WHERE k.bot_id = ? OR (k.bot_id IS NULL AND k.user_id = ?)
        ORDER BY k.created_at DESC, k.rowid DESC LIMIT ?`, *botID, tenantID, limit)
}

func (s *SQLiteStore) DeleteKnowledge(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM knowledge_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge entry: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBotKnowledgeBy removes the entries userID uploaded to the bot and
// returns them so their blobs can be cleaned up.
func (s *SQLiteStore) DeleteBotKnowledgeBy(ctx context.Context, botID, userID string) ([]KnowledgeEntry, error) {
	return s.deleteKnowledgeWhere(ctx, "k.bot_id = ? AND k.user_id = ?", botID, userID)
}

// DeleteAllBotKnowledge removes every entry attached to the bot.
func (s *SQLiteStore) DeleteAllBotKnowledge(ctx context.Context, botID string) ([]KnowledgeEntry, error) {
	return s.deleteKnowledgeWhere(ctx, "k.bot_id = ?", botID)
}

// DeleteBotKnowledgeExcept removes the bot's entries uploaded by anyone but keepUserID.
func (s *SQLiteStore) DeleteBotKnowledgeExcept(ctx context.Context, botID, keepUserID string) ([]KnowledgeEntry, error) {
	return s.deleteKnowledgeWhere(ctx, "k.bot_id = ? AND k.user_id <> ?", botID, keepUserID)
}

func (s *SQLiteStore) deleteKnowledgeWhere(ctx context.Context, where string, args ...any) ([]KnowledgeEntry, error) {
	var removed []KnowledgeEntry
	err := s.InTx(ctx, func(tx *SQLiteStore) error {
		entries, err := tx.queryKnowledge(ctx, "SELECT "+knowledgeColumns+" FROM knowledge_entries k WHERE "+where, args...)
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, "DELETE FROM knowledge_entries WHERE id IN (SELECT k.id FROM knowledge_entries k WHERE "+where+")", args...); err != nil {
			return fmt.Errorf("failed to delete knowledge entries: %w", err)
		}
		removed = entries
		return nil
	})
	return removed, err
}
