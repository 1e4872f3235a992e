package server

import (
	"workroom/internal/models"
	"workroom/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetSidebar handles GET /api/workspaces/:workspaceId/conversations
func (s *Server) GetSidebar(c *fiber.Ctx) error {
	workspaceID, err := s.parseID(c, "workspaceId")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	conversations, err := s.conversationService.ListSidebar(c.Context(), workspaceID, userID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": conversations})
}

// CreateGroup handles POST /api/workspaces/:workspaceId/conversations/groups
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	workspaceID, err := s.parseID(c, "workspaceId")
	if err != nil {
		return nil
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		MemberIDs   []uint `json:"member_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, err := s.conversationService.CreateGroup(c.Context(), service.CreateGroupInput{
		WorkspaceID: workspaceID,
		ActorID:     currentUserID(c),
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ResolveFlowConversation handles GET /api/workspaces/:workspaceId/conversations/flow/:flowId
func (s *Server) ResolveFlowConversation(c *fiber.Ctx) error {
	workspaceID, err := s.parseID(c, "workspaceId")
	if err != nil {
		return nil
	}
	flowID, err := s.parseID(c, "flowId")
	if err != nil {
		return nil
	}

	conv, err := s.conversationService.ResolveFlowConversation(c.Context(), workspaceID, flowID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(conv)
}

// ResolveClientConversation handles GET /api/workspaces/:workspaceId/conversations/clients/:clientId/:channel
// where :channel is "internal" or "external".
func (s *Server) ResolveClientConversation(c *fiber.Ctx) error {
	workspaceID, err := s.parseID(c, "workspaceId")
	if err != nil {
		return nil
	}
	clientID, err := s.parseID(c, "clientId")
	if err != nil {
		return nil
	}

	var chatType models.ChatType
	switch c.Params("channel") {
	case "internal":
		chatType = models.ChatTypeClientInternal
	case "external":
		chatType = models.ChatTypeClientExternal
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Channel must be internal or external"))
	}

	conv, err := s.conversationService.ResolveClientConversation(c.Context(), workspaceID, clientID, chatType, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(conv)
}

// ResolveDirectConversation handles GET /api/workspaces/:workspaceId/conversations/direct/:userId
func (s *Server) ResolveDirectConversation(c *fiber.Ctx) error {
	workspaceID, err := s.parseID(c, "workspaceId")
	if err != nil {
		return nil
	}
	otherUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	conv, err := s.conversationService.ResolveDirectConversation(c.Context(), workspaceID, currentUserID(c), otherUserID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(conv)
}

// GetConversation handles GET /api/conversations/:id
func (s *Server) GetConversation(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	conv, err := s.conversationService.GetConversationForUser(c.Context(), convID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(conv)
}

// JoinGroup handles POST /api/conversations/:id/join
func (s *Server) JoinGroup(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	conv, err := s.conversationService.JoinGroup(c.Context(), convID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(conv)
}

// LeaveGroup handles POST /api/conversations/:id/leave
func (s *Server) LeaveGroup(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	if err := s.conversationService.LeaveGroup(c.Context(), convID, userID); err != nil {
		return respondAppError(c, err)
	}
	s.hub.LeaveConversation(userID, convID)
	return c.JSON(fiber.Map{"message": "Left conversation"})
}

// GetNotificationSetting handles GET /api/conversations/:id/notifications
func (s *Server) GetNotificationSetting(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	setting, err := s.conversationService.GetNotificationSetting(c.Context(), convID, currentUserID(c))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(setting)
}

// UpdateNotificationSetting handles PUT /api/conversations/:id/notifications
func (s *Server) UpdateNotificationSetting(c *fiber.Ctx) error {
	convID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Muted bool `json:"muted"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.conversationService.SetMuted(c.Context(), convID, currentUserID(c), req.Muted); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"muted": req.Muted})
}
