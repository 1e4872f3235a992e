package service

import (
	"context"
	"testing"

	"workroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleReaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)
	msg := env.sendMessage(t, conv.ID, env.users[0].ID, "react to me")

	t.Run("toggle adds then removes", func(t *testing.T) {
		action, err := env.annSvc.ToggleReaction(ctx, msg.ID, env.users[1].ID, "👍")
		require.NoError(t, err)
		assert.Equal(t, ReactionAdded, action)

		reactions, err := env.annSvc.ListReactions(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		require.Len(t, reactions, 1)
		assert.Equal(t, "👍", reactions[0].Emoji)

		action, err = env.annSvc.ToggleReaction(ctx, msg.ID, env.users[1].ID, "👍")
		require.NoError(t, err)
		assert.Equal(t, ReactionRemoved, action)

		reactions, err = env.annSvc.ListReactions(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.Empty(t, reactions)
	})

	t.Run("distinct emoji coexist per user", func(t *testing.T) {
		_, err := env.annSvc.ToggleReaction(ctx, msg.ID, env.users[0].ID, "🔥")
		require.NoError(t, err)
		_, err = env.annSvc.ToggleReaction(ctx, msg.ID, env.users[0].ID, "🎉")
		require.NoError(t, err)

		reactions, err := env.annSvc.ListReactions(ctx, msg.ID, env.users[0].ID)
		require.NoError(t, err)
		assert.Len(t, reactions, 2)
	})

	t.Run("non-member cannot react", func(t *testing.T) {
		_, err := env.annSvc.ToggleReaction(ctx, msg.ID, env.users[2].ID, "👀")
		assert.Error(t, err)
	})
}

func TestStarAndPin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)
	first := env.sendMessage(t, conv.ID, env.users[0].ID, "star me")
	second := env.sendMessage(t, conv.ID, env.users[1].ID, "pin me")

	t.Run("starred listing", func(t *testing.T) {
		require.NoError(t, env.annSvc.SetStarred(ctx, first.ID, env.users[0].ID, true))

		starred, err := env.annSvc.ListStarred(ctx, conv.ID, env.users[0].ID)
		require.NoError(t, err)
		require.Len(t, starred, 1)
		assert.Equal(t, first.ID, starred[0].ID)

		// Setting again is idempotent, unsetting removes it.
		require.NoError(t, env.annSvc.SetStarred(ctx, first.ID, env.users[0].ID, true))
		require.NoError(t, env.annSvc.SetStarred(ctx, first.ID, env.users[0].ID, false))

		starred, err = env.annSvc.ListStarred(ctx, conv.ID, env.users[0].ID)
		require.NoError(t, err)
		assert.Empty(t, starred)
	})

	t.Run("pinned listing", func(t *testing.T) {
		require.NoError(t, env.annSvc.SetPinned(ctx, second.ID, env.users[0].ID, true))

		pinned, err := env.annSvc.ListPinned(ctx, conv.ID, env.users[1].ID)
		require.NoError(t, err)
		require.Len(t, pinned, 1)
		assert.Equal(t, second.ID, pinned[0].ID)
	})

	t.Run("unknown message", func(t *testing.T) {
		err := env.annSvc.SetStarred(ctx, 99999, env.users[0].ID, true)
		assert.Error(t, err)
	})
}

func TestPostProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	postProc := NewPostProcessor(env.annRepo, env.userRepo, env.wsRepo)

	clientSpace := models.ClientSpace{WorkspaceID: env.workspace.ID, Name: "northwind"}
	require.NoError(t, env.db.Create(&clientSpace).Error)

	t.Run("extracts and resolves mentions", func(t *testing.T) {
		msg := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "@Bob Park see @task:42 and @client:northwind",
			DeliveryStatus: models.DeliverySent,
		}
		require.NoError(t, env.db.Create(msg).Error)

		postProc.Process(ctx, env.workspace.ID, msg)

		mentions, err := env.annRepo.ListMentionsForMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, mentions, 3)

		byKind := map[models.MentionKind]models.Mention{}
		for _, m := range mentions {
			byKind[m.TargetType] = m
		}

		require.NotNil(t, byKind[models.MentionUser].TargetID)
		assert.Equal(t, env.users[1].ID, *byKind[models.MentionUser].TargetID)

		require.NotNil(t, byKind[models.MentionTask].TargetID)
		assert.Equal(t, uint(42), *byKind[models.MentionTask].TargetID)

		// Client mentions resolve by name against the workspace's spaces.
		require.NotNil(t, byKind[models.MentionClient].TargetID)
		assert.Equal(t, clientSpace.ID, *byKind[models.MentionClient].TargetID)
	})

	t.Run("multi-word client name resolves in full", func(t *testing.T) {
		acme := models.ClientSpace{WorkspaceID: env.workspace.ID, Name: "Acme Corp"}
		require.NoError(t, env.db.Create(&acme).Error)

		msg := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "cc @client:Acme Corp please review @task:42",
			DeliveryStatus: models.DeliverySent,
		}
		require.NoError(t, env.db.Create(msg).Error)

		postProc.Process(ctx, env.workspace.ID, msg)

		mentions, err := env.annRepo.ListMentionsForMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, mentions, 2)

		byKind := map[models.MentionKind]models.Mention{}
		for _, m := range mentions {
			byKind[m.TargetType] = m
		}
		require.NotNil(t, byKind[models.MentionClient].TargetID)
		assert.Equal(t, acme.ID, *byKind[models.MentionClient].TargetID)
		assert.Equal(t, "@client:Acme Corp", byKind[models.MentionClient].RawText)
	})

	t.Run("unresolved client mention keeps raw text", func(t *testing.T) {
		msg := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "ping @client:missing",
			DeliveryStatus: models.DeliverySent,
		}
		require.NoError(t, env.db.Create(msg).Error)

		postProc.Process(ctx, env.workspace.ID, msg)

		mentions, err := env.annRepo.ListMentionsForMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, mentions, 1)
		assert.Nil(t, mentions[0].TargetID)
		assert.Equal(t, "@client:missing", mentions[0].RawText)
	})

	t.Run("indexes attachments as media items", func(t *testing.T) {
		msg := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Attachments: models.AttachmentList{
				{ID: "p1", URL: "https://files.test/p1.png", MimeType: "image/png"},
				{ID: "d1", URL: "https://files.test/d1.pdf", MimeType: "application/pdf"},
			},
			DeliveryStatus: models.DeliverySent,
		}
		require.NoError(t, env.db.Create(msg).Error)

		postProc.Process(ctx, env.workspace.ID, msg)

		images, err := env.annSvc.MediaGallery(ctx, conv.ID, env.users[0].ID, models.AttachmentImage, 50, 0)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, "p1", images[0].AttachmentID)

		docs, err := env.annSvc.MediaGallery(ctx, conv.ID, env.users[0].ID, models.AttachmentDocument, 50, 0)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, models.AttachmentDocument, docs[0].Kind)
	})
}

func TestMentionsInbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	postProc := NewPostProcessor(env.annRepo, env.userRepo, env.wsRepo)
	for _, content := range []string{"@Bob Park look here", "also @Bob Park"} {
		msg := &models.Message{
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        content,
			DeliveryStatus: models.DeliverySent,
		}
		require.NoError(t, env.db.Create(msg).Error)
		postProc.Process(ctx, env.workspace.ID, msg)
	}

	inbox, err := env.annSvc.MentionsInbox(ctx, env.users[1].ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	for _, m := range inbox {
		require.NotNil(t, m.Message)
		assert.Equal(t, conv.ID, m.Message.ConversationID)
	}

	empty, err := env.annSvc.MentionsInbox(ctx, env.users[2].ID, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
