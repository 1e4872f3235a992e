package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"workroom/internal/models"
	"workroom/internal/repository"

	"gorm.io/gorm"
)

const maxMessageContentLen = 10000 // 10K characters

// MessageService owns the message lifecycle: the send pipeline, the
// sent -> delivered -> read progression, and history reads.
type MessageService struct {
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	wsRepo   repository.WorkspaceRepository
	userRepo repository.UserRepository
	db       *gorm.DB
	postProc *PostProcessor
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	wsRepo repository.WorkspaceRepository,
	userRepo repository.UserRepository,
	db *gorm.DB,
	postProc *PostProcessor,
) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
		wsRepo:   wsRepo,
		userRepo: userRepo,
		db:       db,
		postProc: postProc,
	}
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	WorkspaceID      uint
	ConversationID   uint
	AuthorID         uint
	Content          string
	ReplyToMessageID *uint
	Attachments      models.AttachmentList
}

// Send validates, persists, and post-processes one message. The stored row is
// born at status "sent"; the client-side "sending" stage never reaches the
// database. Post-processing runs after commit and off the request path.
func (s *MessageService) Send(ctx context.Context, in SendMessageInput) (*models.Message, *models.Conversation, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, nil, models.NewValidationError("Message needs content or at least one attachment")
	}
	// The bound is in characters, not bytes; multibyte content counts by rune.
	if utf8.RuneCountInString(in.Content) > maxMessageContentLen {
		return nil, nil, models.NewValidationError("Message content too long (max 10000 characters)")
	}

	// Tenancy checks fail closed: a missing workspace is indistinguishable
	// from a missing conversation.
	ok, err := s.wsRepo.Exists(ctx, in.WorkspaceID)
	if err != nil || !ok {
		return nil, nil, models.NewNotFoundError("Workspace", in.WorkspaceID)
	}

	conv, err := s.convRepo.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv.WorkspaceID != in.WorkspaceID {
		return nil, nil, models.NewNotFoundError("Conversation", in.ConversationID)
	}
	member, err := s.convRepo.IsMember(ctx, in.ConversationID, in.AuthorID)
	if err != nil {
		return nil, nil, err
	}
	if !member {
		return nil, nil, models.NewForbiddenError("You are not a member of this conversation")
	}

	if in.ReplyToMessageID != nil {
		target, err := s.msgRepo.GetByID(ctx, *in.ReplyToMessageID)
		if err != nil {
			return nil, nil, models.NewValidationError("Reply target does not exist")
		}
		if target.ConversationID != in.ConversationID {
			return nil, nil, models.NewValidationError("Reply target belongs to another conversation")
		}
	}

	message := &models.Message{
		ConversationID:   in.ConversationID,
		AuthorID:         in.AuthorID,
		Content:          in.Content,
		ReplyToMessageID: in.ReplyToMessageID,
		Attachments:      in.Attachments,
		DeliveryStatus:   models.DeliverySent,
	}

	if err := s.persistSend(ctx, message); err != nil {
		return nil, nil, err
	}

	if author, err := s.userRepo.GetByID(ctx, in.AuthorID); err == nil {
		message.Author = author
	}

	s.postProc.Dispatch(in.WorkspaceID, message)

	return message, conv, nil
}

// persistSend appends the message and bumps the conversation's activity
// timestamp together, so sidebar ordering never drifts from the log.
func (s *MessageService) persistSend(ctx context.Context, message *models.Message) error {
	now := time.Now().UTC()
	if s.db != nil {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(message).Error; err != nil {
				return err
			}
			return tx.Model(&models.Conversation{}).
				Where("id = ?", message.ConversationID).
				Update("updated_at", now).Error
		})
		if err != nil {
			return models.NewInternalError(err)
		}
		return nil
	}
	if err := s.msgRepo.Create(ctx, message); err != nil {
		return err
	}
	return s.convRepo.TouchUpdatedAt(ctx, message.ConversationID, now)
}

// History returns a page of messages in chronological order, membership
// checked. Limit defaults to 50 and caps at 100.
func (s *MessageService) History(ctx context.Context, convID, userID uint, limit, offset int) ([]*models.Message, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.msgRepo.List(ctx, convID, limit, offset)
}

// HistorySince returns every message created at or after the given time.
// Reconnecting clients call this to reconcile against their local view.
func (s *MessageService) HistorySince(ctx context.Context, convID, userID uint, since time.Time) ([]*models.Message, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.msgRepo.ListSince(ctx, convID, since)
}

// AcknowledgeDelivered records a recipient's delivery ack. Returns the message
// and whether the stored status actually advanced. Acks from the author and
// acks arriving after a later status are silent no-ops; the progression only
// moves forward.
func (s *MessageService) AcknowledgeDelivered(ctx context.Context, msgID, userID uint) (*models.Message, bool, error) {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return nil, false, err
	}
	if msg.AuthorID == userID {
		return msg, false, nil
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, false, err
	}

	changed, err := s.msgRepo.MarkDelivered(ctx, msgID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		msg.DeliveryStatus = models.DeliveryDelivered
	}
	return msg, changed, nil
}

// MarkRead records a read receipt and advances the message to read. The
// receipt write is idempotent and authors never generate receipts for their
// own messages. The returned flag reports whether the scalar status moved.
func (s *MessageService) MarkRead(ctx context.Context, msgID, userID uint) (*models.Message, bool, error) {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return nil, false, err
	}
	if msg.AuthorID == userID {
		return msg, false, nil
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, false, err
	}

	receipt := &models.ReadReceipt{MessageID: msgID, UserID: userID}
	if err := s.msgRepo.CreateReadReceipt(ctx, receipt); err != nil {
		return nil, false, err
	}
	changed, err := s.msgRepo.MarkRead(ctx, msgID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		msg.DeliveryStatus = models.DeliveryRead
	}
	return msg, changed, nil
}

// MarkConversationDelivered bulk-acks every pending message for a recipient
// who just came online. Returns how many rows advanced.
func (s *MessageService) MarkConversationDelivered(ctx context.Context, convID, userID uint) (int64, error) {
	if err := s.requireMember(ctx, convID, userID); err != nil {
		return 0, err
	}
	return s.msgRepo.MarkConversationDelivered(ctx, convID, userID)
}

// ReadBy returns the read receipts for a message, oldest first.
func (s *MessageService) ReadBy(ctx context.Context, msgID, userID uint) ([]models.ReadReceipt, error) {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.msgRepo.ListReadReceipts(ctx, msgID)
}

// DeleteMessage soft-deletes a message. Only the author may delete; the row
// survives for history reconciliation but leaves all listings.
func (s *MessageService) DeleteMessage(ctx context.Context, msgID, userID uint) error {
	msg, err := s.msgRepo.GetByID(ctx, msgID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID {
		return models.NewForbiddenError("Only the author can delete a message")
	}
	return s.msgRepo.SoftDelete(ctx, msgID)
}

func (s *MessageService) requireMember(ctx context.Context, convID, userID uint) error {
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !member {
		return models.NewForbiddenError("You are not a member of this conversation")
	}
	return nil
}
