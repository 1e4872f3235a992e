package service

import (
	"context"

	"workroom/internal/models"
	"workroom/internal/repository"
)

// Reaction toggle outcomes.
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

// AnnotationService owns the layers derived from messages: reactions, the
// starred/pinned flags, the media gallery, and the mentions inbox.
type AnnotationService struct {
	annotationRepo repository.AnnotationRepository
	msgRepo        repository.MessageRepository
	convRepo       repository.ConversationRepository
}

// NewAnnotationService returns a new AnnotationService.
func NewAnnotationService(
	annotationRepo repository.AnnotationRepository,
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
) *AnnotationService {
	return &AnnotationService{
		annotationRepo: annotationRepo,
		msgRepo:        msgRepo,
		convRepo:       convRepo,
	}
}

// ToggleReaction flips the user's reaction with the given emoji on a message.
// Applying the same toggle twice restores the original state. Returns
// ReactionAdded or ReactionRemoved.
func (s *AnnotationService) ToggleReaction(ctx context.Context, msgID, userID uint, emoji string) (string, error) {
	if emoji == "" {
		return "", models.NewValidationError("Emoji is required")
	}
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return "", err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return "", err
	}

	existing, err := s.annotationRepo.GetReaction(ctx, msgID, userID, emoji)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := s.annotationRepo.DeleteReaction(ctx, msgID, userID, emoji); err != nil {
			return "", err
		}
		return ReactionRemoved, nil
	}

	reaction := &models.Reaction{MessageID: msgID, UserID: userID, Emoji: emoji}
	if err := s.annotationRepo.CreateReaction(ctx, reaction); err != nil {
		return "", err
	}
	return ReactionAdded, nil
}

// ListReactions returns every reaction on a message, oldest first.
func (s *AnnotationService) ListReactions(ctx context.Context, msgID, userID uint) ([]models.Reaction, error) {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.annotationRepo.ListReactions(ctx, msgID)
}

// SetStarred sets the starred flag to an explicit value. Unlike reactions this
// is not a toggle, so repeated requests converge instead of flapping.
func (s *AnnotationService) SetStarred(ctx context.Context, msgID, userID uint, starred bool) error {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return err
	}
	return s.msgRepo.SetStarred(ctx, msgID, starred)
}

// SetPinned sets the pinned flag to an explicit value.
func (s *AnnotationService) SetPinned(ctx context.Context, msgID, userID uint, pinned bool) error {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return err
	}
	return s.msgRepo.SetPinned(ctx, msgID, pinned)
}

// ListStarred returns a conversation's starred messages in order.
func (s *AnnotationService) ListStarred(ctx context.Context, convID, userID uint) ([]*models.Message, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.msgRepo.ListStarred(ctx, convID)
}

// ListPinned returns a conversation's pinned messages in order.
func (s *AnnotationService) ListPinned(ctx context.Context, convID, userID uint) ([]*models.Message, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.msgRepo.ListPinned(ctx, convID)
}

// MediaGallery pages through a conversation's attachments, optionally
// filtered by kind. Limit defaults to 50 and caps at 100.
func (s *AnnotationService) MediaGallery(ctx context.Context, convID, userID uint, kind models.AttachmentKind, limit, offset int) ([]models.MediaItem, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.annotationRepo.ListMedia(ctx, convID, kind, limit, offset)
}

// MentionsInbox returns everywhere the user was mentioned, newest first.
func (s *AnnotationService) MentionsInbox(ctx context.Context, userID uint, limit, offset int) ([]models.Mention, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.annotationRepo.ListMentionsForUser(ctx, userID, limit, offset)
}

func (s *AnnotationService) requireMember(ctx context.Context, convID, userID uint) error {
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !member {
		return models.NewForbiddenError("You are not a member of this conversation")
	}
	return nil
}
