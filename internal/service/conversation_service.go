// Package service provides application business logic for conversations,
// messages, and annotations.
package service

import (
	"context"
	"log/slog"
	"strings"

	"workroom/internal/middleware"
	"workroom/internal/models"
	"workroom/internal/repository"

	"gorm.io/gorm"
)

// ConversationService owns the conversation registry. Context-scoped
// conversations (flow, client internal, client external, direct pair) are
// resolved lazily: looking one up creates it if it does not exist yet.
type ConversationService struct {
	convRepo repository.ConversationRepository
	wsRepo   repository.WorkspaceRepository
	userRepo repository.UserRepository
	db       *gorm.DB
}

// NewConversationService returns a new ConversationService.
func NewConversationService(
	convRepo repository.ConversationRepository,
	wsRepo repository.WorkspaceRepository,
	userRepo repository.UserRepository,
	db *gorm.DB,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		wsRepo:   wsRepo,
		userRepo: userRepo,
		db:       db,
	}
}

// CreateGroupInput is the input for creating a group conversation.
type CreateGroupInput struct {
	WorkspaceID uint
	ActorID     uint
	Name        string
	Description string
	MemberIDs   []uint
}

// requireWorkspace verifies the tenancy root. Any failure resolves to
// not-found so cross-tenant probing cannot distinguish absent from denied.
func (s *ConversationService) requireWorkspace(ctx context.Context, workspaceID uint) error {
	ok, err := s.wsRepo.Exists(ctx, workspaceID)
	if err != nil || !ok {
		return models.NewNotFoundError("Workspace", workspaceID)
	}
	return nil
}

// ResolveFlowConversation returns the single conversation attached to a flow,
// creating it on first access. The actor becomes a member either way.
func (s *ConversationService) ResolveFlowConversation(ctx context.Context, workspaceID, flowID, actorID uint) (*models.Conversation, error) {
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	flow, err := s.wsRepo.GetFlow(ctx, workspaceID, flowID)
	if err != nil {
		return nil, err
	}

	conv, err := s.convRepo.FindFlow(ctx, workspaceID, flowID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &models.Conversation{
			WorkspaceID:     workspaceID,
			ChatType:        models.ChatTypeFlow,
			FlowID:          &flow.ID,
			Name:            flow.Name,
			CreatedByUserID: actorID,
		}
		if err := s.createOrRefind(ctx, conv, func() (*models.Conversation, error) {
			return s.convRepo.FindFlow(ctx, workspaceID, flowID)
		}); err != nil {
			return nil, err
		}
	}

	if err := s.convRepo.AddMember(ctx, conv.ID, actorID, models.MemberRoleMember); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conv.ID)
}

// ResolveClientConversation returns the internal or external conversation for
// a client space, creating it on first access. Internal and external channels
// for the same client are distinct conversations and never merge.
func (s *ConversationService) ResolveClientConversation(ctx context.Context, workspaceID, clientSpaceID uint, chatType models.ChatType, actorID uint) (*models.Conversation, error) {
	if chatType != models.ChatTypeClientInternal && chatType != models.ChatTypeClientExternal {
		return nil, models.NewValidationError("Chat type must be client_internal or client_external")
	}
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	clientSpace, err := s.wsRepo.GetClientSpace(ctx, workspaceID, clientSpaceID)
	if err != nil {
		return nil, err
	}

	conv, err := s.convRepo.FindClientScoped(ctx, workspaceID, clientSpaceID, chatType)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &models.Conversation{
			WorkspaceID:     workspaceID,
			ChatType:        chatType,
			ClientSpaceID:   &clientSpace.ID,
			Name:            clientSpace.Name,
			CreatedByUserID: actorID,
		}
		if err := s.createOrRefind(ctx, conv, func() (*models.Conversation, error) {
			return s.convRepo.FindClientScoped(ctx, workspaceID, clientSpaceID, chatType)
		}); err != nil {
			return nil, err
		}
	}

	if err := s.convRepo.AddMember(ctx, conv.ID, actorID, models.MemberRoleMember); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conv.ID)
}

// ResolveDirectConversation returns the one-to-one conversation for a user
// pair, creating it on first access. The pair is stored in canonical order so
// (a, b) and (b, a) resolve to the same conversation.
func (s *ConversationService) ResolveDirectConversation(ctx context.Context, workspaceID, actorID, otherUserID uint) (*models.Conversation, error) {
	if actorID == otherUserID {
		return nil, models.NewValidationError("Cannot start a direct conversation with yourself")
	}
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	other, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other.WorkspaceID != workspaceID {
		return nil, models.NewNotFoundError("User", otherUserID)
	}

	low, high := actorID, otherUserID
	if low > high {
		low, high = high, low
	}

	conv, err := s.convRepo.FindDirectPair(ctx, workspaceID, low, high)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &models.Conversation{
			WorkspaceID:     workspaceID,
			ChatType:        models.ChatTypeDirect,
			UserLowID:       &low,
			UserHighID:      &high,
			CreatedByUserID: actorID,
		}
		if err := s.createOrRefind(ctx, conv, func() (*models.Conversation, error) {
			return s.convRepo.FindDirectPair(ctx, workspaceID, low, high)
		}); err != nil {
			return nil, err
		}
	}

	for _, userID := range []uint{actorID, otherUserID} {
		if err := s.convRepo.AddMember(ctx, conv.ID, userID, models.MemberRoleMember); err != nil {
			return nil, err
		}
	}
	return s.convRepo.GetByID(ctx, conv.ID)
}

// createOrRefind creates the conversation, and on a scope-key collision from
// a concurrent resolve it falls back to the winner's row.
func (s *ConversationService) createOrRefind(ctx context.Context, conv *models.Conversation, refind func() (*models.Conversation, error)) error {
	err := s.convRepo.Create(ctx, conv)
	if err == nil {
		return nil
	}
	existing, findErr := refind()
	if findErr == nil && existing != nil {
		*conv = *existing
		return nil
	}
	return err
}

// CreateGroup creates a named group conversation with the actor as owner.
// A member that cannot be added is logged and skipped rather than failing
// the whole group.
func (s *ConversationService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Conversation, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, models.NewValidationError("Group conversations require a name")
	}
	if err := s.requireWorkspace(ctx, in.WorkspaceID); err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		WorkspaceID:     in.WorkspaceID,
		ChatType:        models.ChatTypeDirect,
		IsGroup:         true,
		Name:            in.Name,
		Description:     in.Description,
		CreatedByUserID: in.ActorID,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	// The conversation row is committed at this point; membership failures,
	// the creator's included, leave it created.
	if err := s.convRepo.AddMember(ctx, conv.ID, in.ActorID, models.MemberRoleOwner); err != nil {
		middleware.Logger.Warn("Failed to add group owner",
			slog.Uint64("conversation_id", uint64(conv.ID)),
			slog.Uint64("user_id", uint64(in.ActorID)),
			slog.String("error", err.Error()),
		)
	}
	for _, memberID := range in.MemberIDs {
		if memberID == in.ActorID {
			continue
		}
		if err := s.convRepo.AddMember(ctx, conv.ID, memberID, models.MemberRoleMember); err != nil {
			middleware.Logger.Warn("Failed to add group member",
				slog.Uint64("conversation_id", uint64(conv.ID)),
				slog.Uint64("user_id", uint64(memberID)),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.convRepo.GetByID(ctx, conv.ID)
}

// ListSidebar returns the user's conversations ordered by latest activity,
// each annotated with its unread count.
func (s *ConversationService) ListSidebar(ctx context.Context, workspaceID, userID uint) ([]*models.Conversation, error) {
	if err := s.requireWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	conversations, err := s.convRepo.ListForUser(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	convIDs := make([]uint, 0, len(conversations))
	for _, conv := range conversations {
		convIDs = append(convIDs, conv.ID)
	}
	counts, err := s.convRepo.UnreadCounts(ctx, userID, convIDs)
	if err != nil {
		return nil, err
	}
	for _, conv := range conversations {
		conv.UnreadCount = int(counts[conv.ID])
	}
	return conversations, nil
}

// GetConversationForUser returns the conversation if the user is an active member.
func (s *ConversationService) GetConversationForUser(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, models.NewForbiddenError("You are not a member of this conversation")
	}
	return conv, nil
}

// JoinGroup adds the user to a group conversation.
func (s *ConversationService) JoinGroup(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, models.NewValidationError("Cannot join a non-group conversation")
	}
	if err := s.convRepo.AddMember(ctx, convID, userID, models.MemberRoleMember); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, convID)
}

// LeaveGroup records the user's departure from a group conversation.
// Membership rows are kept with LeftAt set so history attribution survives.
func (s *ConversationService) LeaveGroup(ctx context.Context, convID, userID uint) error {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return models.NewValidationError("Cannot leave a non-group conversation")
	}
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !member {
		return models.NewForbiddenError("You are not a member of this conversation")
	}
	return s.convRepo.MarkLeft(ctx, convID, userID)
}

// SetMuted updates the user's notification preference for a conversation.
func (s *ConversationService) SetMuted(ctx context.Context, convID, userID uint, muted bool) error {
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !member {
		return models.NewForbiddenError("You are not a member of this conversation")
	}
	return s.convRepo.SetMuted(ctx, convID, userID, muted)
}

// GetNotificationSetting returns the user's notification preference, with
// defaults when no explicit row exists.
func (s *ConversationService) GetNotificationSetting(ctx context.Context, convID, userID uint) (*models.NotificationSetting, error) {
	return s.convRepo.GetNotificationSetting(ctx, convID, userID)
}
