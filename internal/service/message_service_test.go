package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"workroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	t.Run("rejects empty content without attachments", func(t *testing.T) {
		_, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "   \n\t  ",
		})
		require.Error(t, err)
		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	})

	t.Run("accepts attachments without content", func(t *testing.T) {
		msg, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Attachments: models.AttachmentList{
				{ID: "a1", URL: "https://files.test/a1.png", MimeType: "image/png"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.DeliverySent, msg.DeliveryStatus)
	})

	t.Run("rejects oversized content", func(t *testing.T) {
		_, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        strings.Repeat("a", 10001),
		})
		assert.Error(t, err)
	})

	t.Run("length bound counts runes not bytes", func(t *testing.T) {
		// 9000 three-byte runes stay well under the 10000-character bound.
		msg, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        strings.Repeat("語", 9000),
		})
		require.NoError(t, err)
		assert.Equal(t, models.DeliverySent, msg.DeliveryStatus)

		_, _, err = env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        strings.Repeat("語", 10001),
		})
		assert.Error(t, err)
	})

	t.Run("stored content is trimmed", func(t *testing.T) {
		msg, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "  hello there  ",
		})
		require.NoError(t, err)
		assert.Equal(t, "hello there", msg.Content)
	})

	t.Run("non-member cannot send", func(t *testing.T) {
		_, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    env.workspace.ID,
			ConversationID: conv.ID,
			AuthorID:       env.users[2].ID,
			Content:        "intruder",
		})
		require.Error(t, err)
		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, "FORBIDDEN", appErr.Code)
	})

	t.Run("wrong workspace fails closed", func(t *testing.T) {
		_, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:    9999,
			ConversationID: conv.ID,
			AuthorID:       env.users[0].ID,
			Content:        "hello",
		})
		require.Error(t, err)
		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, "NOT_FOUND", appErr.Code)
	})
}

func TestSendReplies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)
	original := env.sendMessage(t, conv.ID, env.users[0].ID, "original")

	t.Run("valid reply target", func(t *testing.T) {
		msg, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:      env.workspace.ID,
			ConversationID:   conv.ID,
			AuthorID:         env.users[1].ID,
			Content:          "replying",
			ReplyToMessageID: &original.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, msg.ReplyToMessageID)
		assert.Equal(t, original.ID, *msg.ReplyToMessageID)
	})

	t.Run("reply target must exist", func(t *testing.T) {
		missing := uint(99999)
		_, _, err := env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:      env.workspace.ID,
			ConversationID:   conv.ID,
			AuthorID:         env.users[1].ID,
			Content:          "replying to nothing",
			ReplyToMessageID: &missing,
		})
		assert.Error(t, err)
	})

	t.Run("reply target must be in the same conversation", func(t *testing.T) {
		other, err := env.convSvc.ResolveDirectConversation(
			ctx, env.workspace.ID, env.users[0].ID, env.users[2].ID)
		require.NoError(t, err)
		elsewhere := env.sendMessage(t, other.ID, env.users[0].ID, "elsewhere")

		_, _, err = env.msgSvc.Send(ctx, SendMessageInput{
			WorkspaceID:      env.workspace.ID,
			ConversationID:   conv.ID,
			AuthorID:         env.users[1].ID,
			Content:          "cross-conversation reply",
			ReplyToMessageID: &elsewhere.ID,
		})
		assert.Error(t, err)
	})
}

func TestDeliveryProgression(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	t.Run("delivered ack advances sent messages once", func(t *testing.T) {
		msg := env.sendMessage(t, conv.ID, env.users[0].ID, "ping")

		updated, changed, err := env.msgSvc.AcknowledgeDelivered(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.DeliveryDelivered, updated.DeliveryStatus)

		// A duplicate ack is a silent no-op.
		_, changed, err = env.msgSvc.AcknowledgeDelivered(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("author acks are skipped", func(t *testing.T) {
		msg := env.sendMessage(t, conv.ID, env.users[0].ID, "own message")

		_, changed, err := env.msgSvc.AcknowledgeDelivered(ctx, msg.ID, env.users[0].ID)
		require.NoError(t, err)
		assert.False(t, changed)

		stored, err := env.msgRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliverySent, stored.DeliveryStatus)
	})

	t.Run("read advances past delivered and records a receipt", func(t *testing.T) {
		msg := env.sendMessage(t, conv.ID, env.users[0].ID, "read me")

		updated, changed, err := env.msgSvc.MarkRead(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.DeliveryRead, updated.DeliveryStatus)

		receipts, err := env.msgSvc.ReadBy(ctx, msg.ID, env.users[0].ID)
		require.NoError(t, err)
		require.Len(t, receipts, 1)
		assert.Equal(t, env.users[1].ID, receipts[0].UserID)
	})

	t.Run("late delivered ack never regresses read", func(t *testing.T) {
		msg := env.sendMessage(t, conv.ID, env.users[0].ID, "out of order")

		_, _, err := env.msgSvc.MarkRead(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)

		_, changed, err := env.msgSvc.AcknowledgeDelivered(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.False(t, changed)

		stored, err := env.msgRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryRead, stored.DeliveryStatus)
	})

	t.Run("repeated reads keep one receipt", func(t *testing.T) {
		msg := env.sendMessage(t, conv.ID, env.users[0].ID, "re-read")

		_, _, err := env.msgSvc.MarkRead(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		_, changed, err := env.msgSvc.MarkRead(ctx, msg.ID, env.users[1].ID)
		require.NoError(t, err)
		assert.False(t, changed)

		receipts, err := env.msgSvc.ReadBy(ctx, msg.ID, env.users[0].ID)
		require.NoError(t, err)
		assert.Len(t, receipts, 1)
	})
}

func TestMarkConversationDelivered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	env.sendMessage(t, conv.ID, env.users[0].ID, "one")
	env.sendMessage(t, conv.ID, env.users[0].ID, "two")
	mine := env.sendMessage(t, conv.ID, env.users[1].ID, "mine")

	advanced, err := env.msgSvc.MarkConversationDelivered(ctx, conv.ID, env.users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), advanced)

	// Own messages are untouched by the bulk ack.
	stored, err := env.msgRepo.GetByID(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, stored.DeliveryStatus)

	advanced, err = env.msgSvc.MarkConversationDelivered(ctx, conv.ID, env.users[1].ID)
	require.NoError(t, err)
	assert.Zero(t, advanced)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)

	for _, content := range []string{"first", "second", "third"} {
		env.sendMessage(t, conv.ID, env.users[0].ID, content)
	}

	t.Run("chronological order", func(t *testing.T) {
		msgs, err := env.msgSvc.History(ctx, conv.ID, env.users[1].ID, 50, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, "third", msgs[2].Content)
	})

	t.Run("limit returns the newest page", func(t *testing.T) {
		msgs, err := env.msgSvc.History(ctx, conv.ID, env.users[1].ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "second", msgs[0].Content)
		assert.Equal(t, "third", msgs[1].Content)
	})

	t.Run("since cursor", func(t *testing.T) {
		msgs, err := env.msgSvc.HistorySince(ctx, conv.ID, env.users[1].ID, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.Len(t, msgs, 3)

		msgs, err = env.msgSvc.HistorySince(ctx, conv.ID, env.users[1].ID, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("non-member denied", func(t *testing.T) {
		_, err := env.msgSvc.History(ctx, conv.ID, env.users[2].ID, 50, 0)
		assert.Error(t, err)
	})
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.newDirectConv(t)
	msg := env.sendMessage(t, conv.ID, env.users[0].ID, "ephemeral")

	t.Run("only the author can delete", func(t *testing.T) {
		err := env.msgSvc.DeleteMessage(ctx, msg.ID, env.users[1].ID)
		require.Error(t, err)
		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, "FORBIDDEN", appErr.Code)
	})

	t.Run("deleted messages leave history", func(t *testing.T) {
		require.NoError(t, env.msgSvc.DeleteMessage(ctx, msg.ID, env.users[0].ID))

		msgs, err := env.msgSvc.History(ctx, conv.ID, env.users[0].ID, 50, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
