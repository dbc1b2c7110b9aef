package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/store"
)

func TestGeneralAssistantIsAlwaysAllowed(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")

	bot, err := env.access.Authorize(context.Background(), u.ID, nil)

	assert.NoError(t, err)
	assert.Nil(t, bot)
}

func TestOwnerAllowedStrangerDenied(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	stranger := env.user(t, "stranger@example.com")
	bot := env.bot(t, owner, "Helper", "")

	got, err := env.access.Authorize(ctx, owner.ID, &bot.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, got.ID)

	_, err = env.access.Authorize(ctx, stranger.ID, &bot.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	missing := "00000000-0000-0000-0000-000000000000"
	_, err = env.access.Authorize(ctx, owner.ID, &missing)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestMembershipGrantsAccessToExactlyTheLinkedBot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	member := env.user(t, "member@example.com")
	shared := env.bot(t, owner, "Shared", "")
	private := env.bot(t, owner, "Private", "")

	group, err := env.groups.Create(ctx, owner.ID, "team", "", shared.ID)
	require.NoError(t, err)
	require.NoError(t, env.groups.AddMember(ctx, owner.ID, group.ID, member.Email))

	_, err = env.access.Authorize(ctx, member.ID, &shared.ID)
	assert.NoError(t, err)
	_, err = env.access.Authorize(ctx, member.ID, &private.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	require.NoError(t, env.groups.RemoveMember(ctx, owner.ID, group.ID, member.Email))
	require.NoError(t, env.groups.RemoveMember(ctx, owner.ID, group.ID, member.Email), "second removal is a no-op")
	_, err = env.access.Authorize(ctx, member.ID, &shared.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestOwnerStaysAuthorizedRegardlessOfGroups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	bot := env.bot(t, owner, "Helper", "")
	group, err := env.groups.Create(ctx, owner.ID, "team", "", bot.ID)
	require.NoError(t, err)
	require.NoError(t, env.groups.Delete(ctx, owner.ID, group.ID))

	_, err = env.access.Authorize(ctx, owner.ID, &bot.ID)
	assert.NoError(t, err)
}

func TestMembersNeverGetOwnerRights(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	member := env.user(t, "member@example.com")
	bot := env.bot(t, owner, "Helper", "")
	group, err := env.groups.Create(ctx, owner.ID, "team", "", bot.ID)
	require.NoError(t, err)
	require.NoError(t, env.groups.AddMember(ctx, owner.ID, group.ID, member.Email))

	err = env.bots.Delete(ctx, member.ID, bot.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	_, err = env.db.GetBot(ctx, bot.ID)
	assert.NoError(t, err)

	_, err = env.bots.EmbedToken(ctx, member.ID, bot.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestHistoryAndClearUseTheResolver(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	stranger := env.user(t, "stranger@example.com")
	bot := env.bot(t, owner, "Helper", "")
	require.NoError(t, env.db.CreateMessage(ctx, &store.Message{UserID: owner.ID, BotID: &bot.ID, Role: store.RoleUser, Content: "hi"}))

	_, err := env.chat.History(ctx, stranger.ID, &bot.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	_, err = env.chat.ClearHistory(ctx, stranger.ID, &bot.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	msgs, err := env.chat.History(ctx, owner.ID, &bot.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	n, err := env.chat.ClearHistory(ctx, owner.ID, &bot.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
