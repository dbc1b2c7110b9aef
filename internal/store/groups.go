package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateGroup inserts the group, its owner membership and the bot link together.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *Group, botID string) error {
	group.ID = uuid.NewString()
	group.CreatedAt = time.Now().UTC()
	return s.InTx(ctx, func(tx *SQLiteStore) error {
		_, err := tx.q.ExecContext(ctx,
			"INSERT INTO user_groups (id, owner_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)",
			group.ID, group.OwnerID, group.Name, group.Description, group.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		_, err = tx.q.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
			group.ID, group.OwnerID, GroupRoleOwner, group.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert group owner: %w", err)
		}
		if _, err = tx.q.ExecContext(ctx, "INSERT INTO group_bots (group_id, bot_id) VALUES (?, ?)", group.ID, botID); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to link bot to group: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	var group Group
	err := s.q.QueryRowContext(ctx,
		"SELECT id, owner_id, name, description, created_at FROM user_groups WHERE id = ?", id).
		Scan(&group.ID, &group.OwnerID, &group.Name, &group.Description, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// GroupBot returns the bot linked to the group, or nil when there is none.
func (s *SQLiteStore) GroupBot(ctx context.Context, groupID string) (*Bot, error) {
	var bot Bot
	err := s.q.QueryRowContext(ctx, `
        SELECT b.id, b.user_id, b.name, b.description, b.system_prompt, b.created_at
        FROM group_bots gb JOIN bots b ON b.id = gb.bot_id
        WHERE gb.group_id = ?`, groupID).
		Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.SystemPrompt, &bot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group bot: %w", err)
	}
	return &bot, nil
}

// MemberRole returns the user's role in the group or ErrNotFound.
func (s *SQLiteStore) MemberRole(ctx context.Context, groupID, userID string) (string, error) {
	var role string
	err := s.q.QueryRowContext(ctx,
		"SELECT role FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]GroupSummary, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT g.id, g.owner_id, g.name, g.description, g.created_at,
               (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id),
               b.id, b.name
        FROM user_groups g
        JOIN group_members m ON m.group_id = g.id AND m.user_id = ?
        LEFT JOIN group_bots gb ON gb.group_id = g.id
        LEFT JOIN bots b ON b.id = gb.bot_id
        ORDER BY g.created_at DESC, g.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := []GroupSummary{}
	for rows.Next() {
		var gs GroupSummary
		var botID, botName sql.NullString
		if err := rows.Scan(&gs.ID, &gs.OwnerID, &gs.Name, &gs.Description, &gs.CreatedAt,
			&gs.MemberCount, &botID, &botName); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		gs.BotID = stringPtr(botID)
		gs.BotName = stringPtr(botName)
		groups = append(groups, gs)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]MemberProfile, error) {
	rows, err := s.q.QueryContext(ctx, `
        SELECT u.id, u.email, u.full_name, m.role
        FROM group_members m JOIN users u ON u.id = m.user_id
        WHERE m.group_id = ?
        ORDER BY m.joined_at, m.rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := []MemberProfile{}
	for rows.Next() {
		var mp MemberProfile
		if err := rows.Scan(&mp.UserID, &mp.Email, &mp.FullName, &mp.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, mp)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID, role string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		groupID, userID, role, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember is idempotent.
func (s *SQLiteStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// DeleteGroup removes the group; memberships and the bot link cascade.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM user_groups WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}
