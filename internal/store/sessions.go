package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, secret_hash, client_meta, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		session.ID, session.UserID, session.SecretHash, session.ClientMeta, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.q.QueryRowContext(ctx,
		"SELECT id, user_id, secret_hash, client_meta, created_at, expires_at FROM sessions WHERE id = ?", id).
		Scan(&session.ID, &session.UserID, &session.SecretHash, &session.ClientMeta, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// DeleteSession is a no-op for unknown ids.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before now.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
