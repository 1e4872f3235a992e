package repository

import (
	"context"
	"errors"

	"workroom/internal/models"

	"gorm.io/gorm"
)

// AnnotationRepository defines persistence for the derived layers on top of
// messages: mentions, reactions, and the media gallery index.
type AnnotationRepository interface {
	CreateMentions(ctx context.Context, mentions []models.Mention) error
	ListMentionsForMessage(ctx context.Context, msgID uint) ([]models.Mention, error)
	ListMentionsForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Mention, error)
	GetReaction(ctx context.Context, msgID, userID uint, emoji string) (*models.Reaction, error)
	CreateReaction(ctx context.Context, reaction *models.Reaction) error
	DeleteReaction(ctx context.Context, msgID, userID uint, emoji string) error
	ListReactions(ctx context.Context, msgID uint) ([]models.Reaction, error)
	CreateMediaItems(ctx context.Context, items []models.MediaItem) error
	ListMedia(ctx context.Context, convID uint, kind models.AttachmentKind, limit, offset int) ([]models.MediaItem, error)
}

type annotationRepository struct {
	db *gorm.DB
}

// NewAnnotationRepository creates a new annotation repository.
func NewAnnotationRepository(db *gorm.DB) AnnotationRepository {
	return &annotationRepository{db: db}
}

func (r *annotationRepository) CreateMentions(ctx context.Context, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&mentions).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *annotationRepository) ListMentionsForMessage(ctx context.Context, msgID uint) ([]models.Mention, error) {
	var mentions []models.Mention
	err := r.db.WithContext(ctx).
		Where("message_id = ?", msgID).
		Order("id ASC").
		Find(&mentions).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return mentions, nil
}

// ListMentionsForUser is the mentions inbox: everywhere this user was
// @-mentioned, newest first, with the message and its author preloaded.
func (r *annotationRepository) ListMentionsForUser(ctx context.Context, userID uint, limit, offset int) ([]models.Mention, error) {
	var mentions []models.Mention
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", models.MentionUser, userID).
		Preload("Message").
		Preload("Message.Author").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&mentions).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return mentions, nil
}

func (r *annotationRepository) GetReaction(ctx context.Context, msgID, userID uint, emoji string) (*models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", msgID, userID, emoji).
		First(&reaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &reaction, nil
}

func (r *annotationRepository) CreateReaction(ctx context.Context, reaction *models.Reaction) error {
	if err := r.db.WithContext(ctx).Create(reaction).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Concurrent toggle already added it.
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *annotationRepository) DeleteReaction(ctx context.Context, msgID, userID uint, emoji string) error {
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", msgID, userID, emoji).
		Delete(&models.Reaction{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *annotationRepository) ListReactions(ctx context.Context, msgID uint) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", msgID).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return reactions, nil
}

func (r *annotationRepository) CreateMediaItems(ctx context.Context, items []models.MediaItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListMedia pages through a conversation's gallery, newest first. An empty
// kind returns every media type.
func (r *annotationRepository) ListMedia(ctx context.Context, convID uint, kind models.AttachmentKind, limit, offset int) ([]models.MediaItem, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var items []models.MediaItem
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}
