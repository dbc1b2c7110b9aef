package core

import (
	"context"
	"errors"
	"strings"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/store"
)

// GroupService manages sharing a bot with other users. Membership changes
// also clean up the knowledge a departing member uploaded to the shared bot.
type GroupService struct {
	db        *store.SQLiteStore
	access    *AccessResolver
	knowledge *KnowledgeService
}

func NewGroupService(db *store.SQLiteStore, access *AccessResolver, knowledge *KnowledgeService) *GroupService {
	return &GroupService{db: db, access: access, knowledge: knowledge}
}

type GroupView struct {
	store.GroupSummary
	IsOwner bool `json:"is_owner"`
}

type GroupDetails struct {
	Group   *store.Group          `json:"group"`
	Bot     *store.Bot            `json:"bot"`
	Members []store.MemberProfile `json:"members"`
	IsOwner bool                  `json:"is_owner"`
}

type GroupFile struct {
	store.KnowledgeWithUploader
	IsMine bool `json:"is_mine"`
}

func (s *GroupService) Create(ctx context.Context, userID, name, description, botID string) (*store.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("Group name is required")
	}
	if _, err := s.access.RequireOwner(ctx, userID, botID); err != nil {
		return nil, err
	}
	group := &store.Group{OwnerID: userID, Name: name, Description: description}
	if err := s.db.CreateGroup(ctx, group, botID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("Bot is already shared in a group")
		}
		return nil, err
	}
	return group, nil
}

func (s *GroupService) List(ctx context.Context, userID string) ([]GroupView, error) {
	groups, err := s.db.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]GroupView, len(groups))
	for i, g := range groups {
		views[i] = GroupView{GroupSummary: g, IsOwner: g.OwnerID == userID}
	}
	return views, nil
}

func (s *GroupService) Details(ctx context.Context, userID, groupID string) (*GroupDetails, error) {
	group, err := s.requireMember(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	bot, err := s.db.GroupBot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.db.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupDetails{Group: group, Bot: bot, Members: members, IsOwner: group.OwnerID == userID}, nil
}

func (s *GroupService) AddMember(ctx context.Context, userID, groupID, email string) error {
	if _, err := s.requireOwner(ctx, userID, groupID); err != nil {
		return err
	}
	target, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Email does not exist")
	}
	if err != nil {
		return err
	}
	if err := s.db.AddMember(ctx, groupID, target.ID, store.GroupRoleMember); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.Conflict("User is already a member")
		}
		return err
	}
	return nil
}

// RemoveMember is idempotent: removing someone who is not a member succeeds.
func (s *GroupService) RemoveMember(ctx context.Context, userID, groupID, email string) error {
	if _, err := s.requireOwner(ctx, userID, groupID); err != nil {
		return err
	}
	target, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Email does not exist")
	}
	if err != nil {
		return err
	}
	if target.ID == userID {
		return apperr.BadRequest("The owner cannot remove themselves")
	}
	return s.detach(ctx, groupID, target.ID)
}

func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	group, err := s.requireMember(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID == userID {
		return apperr.BadRequest("The owner cannot leave the group; delete it instead")
	}
	return s.detach(ctx, groupID, userID)
}

// Delete removes the group and every other member's files for its bot. The
// owner's own files stay with the bot.
func (s *GroupService) Delete(ctx context.Context, userID, groupID string) error {
	group, err := s.requireOwner(ctx, userID, groupID)
	if err != nil {
		return err
	}
	var removed []store.KnowledgeEntry
	err = s.db.InTx(ctx, func(tx *store.SQLiteStore) error {
		bot, err := tx.GroupBot(ctx, groupID)
		if err != nil {
			return err
		}
		if bot != nil {
			if removed, err = tx.DeleteBotKnowledgeExcept(ctx, bot.ID, group.OwnerID); err != nil {
				return err
			}
		}
		return tx.DeleteGroup(ctx, groupID)
	})
	if err != nil {
		return err
	}
	s.knowledge.removeBlobs(ctx, removed)
	return nil
}

func (s *GroupService) Knowledge(ctx context.Context, userID, groupID string) ([]GroupFile, error) {
	if _, err := s.requireMember(ctx, userID, groupID); err != nil {
		return nil, err
	}
	bot, err := s.db.GroupBot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	files := []GroupFile{}
	if bot == nil {
		return files, nil
	}
	entries, err := s.db.ListKnowledgeForBot(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		files = append(files, GroupFile{KnowledgeWithUploader: e, IsMine: e.UserID == userID})
	}
	return files, nil
}

// detach drops the membership and the member's files for the group's bot together.
func (s *GroupService) detach(ctx context.Context, groupID, memberID string) error {
	var removed []store.KnowledgeEntry
	err := s.db.InTx(ctx, func(tx *store.SQLiteStore) error {
		bot, err := tx.GroupBot(ctx, groupID)
		if err != nil {
			return err
		}
		if bot != nil && bot.UserID != memberID {
			if removed, err = tx.DeleteBotKnowledgeBy(ctx, bot.ID, memberID); err != nil {
				return err
			}
		}
		return tx.RemoveMember(ctx, groupID, memberID)
	})
	if err != nil {
		return err
	}
	s.knowledge.removeBlobs(ctx, removed)
	return nil
}

func (s *GroupService) loadGroup(ctx context.Context, groupID string) (*store.Group, error) {
	group, err := s.db.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Group not found")
	}
	return group, err
}

func (s *GroupService) requireOwner(ctx context.Context, userID, groupID string) (*store.Group, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != userID {
		return nil, apperr.Forbidden("Only the group owner can do this")
	}
	return group, nil
}

func (s *GroupService) requireMember(ctx context.Context, userID, groupID string) (*store.Group, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.MemberRole(ctx, groupID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Forbidden("You are not a member of this group")
		}
		return nil, err
	}
	return group, nil
}
