package repository

import (
	"context"
	"errors"
	"time"

	"workroom/internal/cache"
	"workroom/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository defines the interface for conversation data operations.
// The Find* lookups implement the registry side of resolve-or-create: each
// returns (nil, nil) when no conversation exists for the scope key.
type ConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	FindClientScoped(ctx context.Context, workspaceID, clientSpaceID uint, chatType models.ChatType) (*models.Conversation, error)
	FindDirectPair(ctx context.Context, workspaceID, userLowID, userHighID uint) (*models.Conversation, error)
	FindFlow(ctx context.Context, workspaceID, flowID uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, workspaceID, userID uint) ([]*models.Conversation, error)
	AddMember(ctx context.Context, convID, userID uint, role string) error
	MarkLeft(ctx context.Context, convID, userID uint) error
	IsMember(ctx context.Context, convID, userID uint) (bool, error)
	TouchUpdatedAt(ctx context.Context, convID uint, at time.Time) error
	UnreadCounts(ctx context.Context, userID uint, convIDs []uint) (map[uint]int64, error)
	GetNotificationSetting(ctx context.Context, convID, userID uint) (*models.NotificationSetting, error)
	SetMuted(ctx context.Context, convID, userID uint, muted bool) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Conversation already exists for this scope")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	key := cache.ConversationKey(id)

	err := cache.Aside(ctx, key, &conv, cache.ConversationTTL, func() error {
		err := r.db.WithContext(ctx).
			Preload("Members", "left_at IS NULL").
			Preload("Members.User").
			First(&conv, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Conversation", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindClientScoped(ctx context.Context, workspaceID, clientSpaceID uint, chatType models.ChatType) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND client_space_id = ? AND chat_type = ?", workspaceID, clientSpaceID, chatType).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

func (r *conversationRepository) FindDirectPair(ctx context.Context, workspaceID, userLowID, userHighID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND chat_type = ? AND is_group = ? AND user_low_id = ? AND user_high_id = ?",
			workspaceID, models.ChatTypeDirect, false, userLowID, userHighID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

func (r *conversationRepository) FindFlow(ctx context.Context, workspaceID, flowID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND chat_type = ? AND flow_id = ?", workspaceID, models.ChatTypeFlow, flowID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

// ListForUser returns the sidebar list: every conversation the user is an
// active member of, newest activity first, each with its latest message
// preloaded for preview. The list is cached briefly per viewer; unread counts
// are layered on top by the service so they never go stale with it.
func (r *conversationRepository) ListForUser(ctx context.Context, workspaceID, userID uint) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	key := cache.SidebarKey(workspaceID, userID)

	err := cache.Aside(ctx, key, &conversations, cache.SidebarTTL, func() error {
		err := r.db.WithContext(ctx).
			Joins("JOIN conversation_members cm ON conversations.id = cm.conversation_id").
			Where("cm.user_id = ? AND cm.left_at IS NULL AND conversations.workspace_id = ?", userID, workspaceID).
			Preload("Members", "left_at IS NULL").
			Preload("Members.User").
			Preload("Messages", func(db *gorm.DB) *gorm.DB {
				return db.Order("created_at DESC").Limit(1)
			}).
			Preload("Messages.Author").
			Order("conversations.updated_at DESC").
			Find(&conversations).Error
		if err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) AddMember(ctx context.Context, convID, userID uint, role string) error {
	member := models.ConversationMember{
		ConversationID: convID,
		UserID:         userID,
		Role:           role,
	}
	// Use OnConflict to silently ignore duplicate key errors
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return models.NewInternalError(err)
	}
	// Rejoining clears a previous departure.
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("left_at", nil).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	setting := models.NotificationSetting{ConversationID: convID, UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateConversation(ctx, convID)
	return nil
}

func (r *conversationRepository) MarkLeft(ctx context.Context, convID, userID uint) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		Update("left_at", &now).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateConversation(ctx, convID)
	return nil
}

func (r *conversationRepository) IsMember(ctx context.Context, convID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// TouchUpdatedAt bumps the conversation's activity timestamp so the sidebar
// ordering tracks the latest message. Cached copies of the conversation and of
// every active member's sidebar are dropped with it.
func (r *conversationRepository) TouchUpdatedAt(ctx context.Context, convID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Update("updated_at", at).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateConversation(ctx, convID)
	r.invalidateMemberSidebars(ctx, convID)
	return nil
}

func (r *conversationRepository) invalidateMemberSidebars(ctx context.Context, convID uint) {
	if cache.GetClient() == nil {
		return
	}
	type row struct {
		WorkspaceID uint
		UserID      uint
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Select("conversations.workspace_id AS workspace_id, conversation_members.user_id AS user_id").
		Joins("JOIN conversations ON conversations.id = conversation_members.conversation_id").
		Where("conversation_members.conversation_id = ? AND conversation_members.left_at IS NULL", convID).
		Find(&rows).Error
	if err != nil {
		return
	}
	for _, m := range rows {
		cache.Invalidate(ctx, cache.SidebarKey(m.WorkspaceID, m.UserID))
	}
}

// UnreadCounts counts, per conversation, the messages from other authors the
// user has not read yet. Read receipts are the per-recipient truth here.
func (r *conversationRepository) UnreadCounts(ctx context.Context, userID uint, convIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(convIDs))
	if len(convIDs) == 0 {
		return counts, nil
	}

	type row struct {
		ConversationID uint
		N              int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS n").
		Where("messages.conversation_id IN ? AND messages.author_id <> ? AND messages.deleted_at IS NULL", convIDs, userID).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts rr WHERE rr.message_id = messages.id AND rr.user_id = ?)", userID).
		Group("messages.conversation_id").
		Find(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, r := range rows {
		counts[r.ConversationID] = r.N
	}
	return counts, nil
}

func (r *conversationRepository) GetNotificationSetting(ctx context.Context, convID, userID uint) (*models.NotificationSetting, error) {
	var setting models.NotificationSetting
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Absent row means defaults.
			return &models.NotificationSetting{ConversationID: convID, UserID: userID}, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &setting, nil
}

func (r *conversationRepository) SetMuted(ctx context.Context, convID, userID uint, muted bool) error {
	setting := models.NotificationSetting{ConversationID: convID, UserID: userID, Muted: muted}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"muted", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
