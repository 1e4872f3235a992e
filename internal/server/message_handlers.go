package server

import (
	"log"
	"time"

	"workroom/internal/models"
	"workroom/internal/notifications"
	"workroom/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/conversations/:id/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	var req struct {
		WorkspaceID      uint                  `json:"workspace_id"`
		Content          string                `json:"content"`
		ReplyToMessageID *uint                 `json:"reply_to_message_id"`
		Attachments      models.AttachmentList `json:"attachments"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, conv, err := s.messageService.Send(c.Context(), service.SendMessageInput{
		WorkspaceID:      req.WorkspaceID,
		ConversationID:   convID,
		AuthorID:         userID,
		Content:          req.Content,
		ReplyToMessageID: req.ReplyToMessageID,
		Attachments:      req.Attachments,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	event := notifications.Event{
		Type:           notifications.EventNewMessage,
		ConversationID: conv.ID,
		UserID:         userID,
		Payload:        message,
	}
	if s.redis == nil {
		// Single-instance mode: fan out through the local hub directly.
		s.hub.BroadcastToConversation(conv.ID, event)
	} else if perr := s.notifier.PublishChatEvent(c.Context(), conv.ID, event); perr != nil {
		log.Printf("publish chat event error: %v", perr)
		s.hub.BroadcastToConversation(conv.ID, event)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// GetMessages handles GET /api/conversations/:id/messages
func (s *Server) GetMessages(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	p := parsePagination(c, 50)

	messages, err := s.messageService.History(c.Context(), convID, currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// GetMessagesSince handles GET /api/conversations/:id/messages/since?since=RFC3339
// Reconnecting clients use this to reconcile their local view with the server.
func (s *Server) GetMessagesSince(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	since, perr := time.Parse(time.RFC3339, c.Query("since"))
	if perr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Query parameter 'since' must be RFC3339"))
	}

	messages, err := s.messageService.HistorySince(c.Context(), convID, currentUserID(c), since)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// MarkConversationDelivered handles POST /api/conversations/:id/delivered
// Bulk delivery ack for a recipient coming back online.
func (s *Server) MarkConversationDelivered(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	advanced, err := s.messageService.MarkConversationDelivered(c.Context(), convID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	if advanced > 0 {
		s.publishAck(c, convID, notifications.EventMessageDelivered, notifications.StatusPayload{
			Status: string(models.DeliveryDelivered),
			UserID: userID,
		})
	}
	return c.JSON(fiber.Map{"advanced": advanced})
}

// AcknowledgeDelivered handles POST /api/messages/:id/delivered
func (s *Server) AcknowledgeDelivered(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	msg, changed, err := s.messageService.AcknowledgeDelivered(c.Context(), msgID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	if changed {
		s.publishAck(c, msg.ConversationID, notifications.EventMessageDelivered, notifications.StatusPayload{
			MessageID: msg.ID,
			Status:    string(models.DeliveryDelivered),
			UserID:    userID,
		})
	}
	return c.JSON(msg)
}

// MarkMessageRead handles POST /api/messages/:id/read
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	msg, changed, err := s.messageService.MarkRead(c.Context(), msgID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	if changed {
		s.publishAck(c, msg.ConversationID, notifications.EventMessageRead, notifications.StatusPayload{
			MessageID: msg.ID,
			Status:    string(models.DeliveryRead),
			UserID:    userID,
		})
	}
	return c.JSON(msg)
}

// GetReadBy handles GET /api/messages/:id/read-by
func (s *Server) GetReadBy(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	receipts, err := s.messageService.ReadBy(c.Context(), msgID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"read_by": receipts})
}

// DeleteMessage handles DELETE /api/messages/:id
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	msgID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.messageService.DeleteMessage(c.Context(), msgID, currentUserID(c)); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

// publishAck sends a delivery-progression event through Redis, falling back
// to the local hub when publishing fails.
func (s *Server) publishAck(c *fiber.Ctx, convID uint, eventType string, payload notifications.StatusPayload) {
	event := notifications.Event{
		Type:           eventType,
		ConversationID: convID,
		UserID:         payload.UserID,
		Payload:        payload,
	}
	if s.redis == nil {
		s.hub.BroadcastToConversation(convID, event)
		return
	}
	if perr := s.notifier.PublishAckEvent(c.Context(), convID, event); perr != nil {
		log.Printf("publish ack event error: %v", perr)
		s.hub.BroadcastToConversation(convID, event)
	}
}
