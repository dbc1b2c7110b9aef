package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, full_name, password_hash, plan_type, credits,
    daily_requests_count, last_request_date, pro_expires_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	var lastDate sql.NullString
	var proExpires sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.PlanType, &user.Credits,
		&user.DailyRequestsCount, &lastDate, &proExpires, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.LastRequestDate = lastDate.String
	if proExpires.Valid {
		t := proExpires.Time
		user.ProExpiresAt = &t
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	if user.PlanType == "" {
		user.PlanType = PlanFree
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO users (id, email, full_name, password_hash, plan_type, credits, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.FullName, user.PasswordHash, user.PlanType, user.Credits, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(s.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// ConsumeDailyRequest counts one request for today in a single conditional
// update. A stale last_request_date resets the counter before the limit test.
// It returns false when the user is already at the limit for today (or the
// plan changed underneath the caller).
func (s *SQLiteStore) ConsumeDailyRequest(ctx context.Context, userID, plan, today string, limit int) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
        UPDATE users SET
            daily_requests_count = CASE
                WHEN last_request_date IS NULL OR last_request_date < ?1 THEN 1
                ELSE daily_requests_count + 1
            END,
            last_request_date = ?1
        WHERE id = ?2
          AND plan_type = ?3
          AND (CASE
                WHEN last_request_date IS NULL OR last_request_date < ?1 THEN 0
                ELSE daily_requests_count
              END) < ?4`,
		today, userID, plan, limit)
	if err != nil {
		return false, fmt.Errorf("failed to consume daily request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// DebitCredits subtracts amount only when the balance covers it.
func (s *SQLiteStore) DebitCredits(ctx context.Context, userID string, amount int) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?", amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) UpdatePlan(ctx context.Context, userID, plan string, expiresAt *time.Time) error {
	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}
	res, err := s.q.ExecContext(ctx, "UPDATE users SET plan_type = ?, pro_expires_at = ? WHERE id = ?", plan, expires, userID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
