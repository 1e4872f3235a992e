package server

import (
	"log"

	"workroom/internal/models"
	"workroom/internal/notifications"

	"github.com/gofiber/fiber/v2"
)

// ToggleReaction handles POST /api/messages/:id/reactions
func (s *Server) ToggleReaction(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	action, err := s.annotationService.ToggleReaction(c.Context(), msgID, userID, req.Emoji)
	if err != nil {
		return respondAppError(c, err)
	}

	// The reaction event rides the chat channel so every viewer updates.
	if msg, gerr := s.msgRepo.GetByID(c.Context(), msgID); gerr == nil {
		event := notifications.Event{
			Type:           notifications.EventMessageReaction,
			ConversationID: msg.ConversationID,
			UserID:         userID,
			Payload: notifications.ReactionPayload{
				MessageID: msgID,
				UserID:    userID,
				Emoji:     req.Emoji,
				Action:    action,
			},
		}
		if s.redis == nil {
			s.hub.BroadcastToConversation(msg.ConversationID, event)
		} else if perr := s.notifier.PublishChatEvent(c.Context(), msg.ConversationID, event); perr != nil {
			log.Printf("publish reaction event error: %v", perr)
			s.hub.BroadcastToConversation(msg.ConversationID, event)
		}
	}

	return c.JSON(fiber.Map{"action": action, "emoji": req.Emoji})
}

// GetReactions handles GET /api/messages/:id/reactions
func (s *Server) GetReactions(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	reactions, err := s.annotationService.ListReactions(c.Context(), msgID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}

// SetStarred handles PUT /api/messages/:id/star
func (s *Server) SetStarred(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Starred bool `json:"starred"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.annotationService.SetStarred(c.Context(), msgID, currentUserID(c), req.Starred); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"starred": req.Starred})
}

// SetPinned handles PUT /api/messages/:id/pin
func (s *Server) SetPinned(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.annotationService.SetPinned(c.Context(), msgID, currentUserID(c), req.Pinned); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"pinned": req.Pinned})
}

// GetStarredMessages handles GET /api/conversations/:id/starred
func (s *Server) GetStarredMessages(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	messages, err := s.annotationService.ListStarred(c.Context(), convID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// GetPinnedMessages handles GET /api/conversations/:id/pinned
func (s *Server) GetPinnedMessages(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	messages, err := s.annotationService.ListPinned(c.Context(), convID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// GetMediaGallery handles GET /api/conversations/:id/media?kind=image
func (s *Server) GetMediaGallery(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p := parsePagination(c, 50)

	kind := models.AttachmentKind(c.Query("kind"))
	items, err := s.annotationService.MediaGallery(c.Context(), convID, currentUserID(c), kind, p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"media": items})
}

// GetMentionsInbox handles GET /api/mentions
func (s *Server) GetMentionsInbox(c *fiber.Ctx) error {
	p := parsePagination(c, 50)

	mentions, err := s.annotationService.MentionsInbox(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"mentions": mentions})
}
