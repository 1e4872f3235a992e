package repository

import (
	"context"
	"errors"
	"time"

	"workroom/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for message data operations.
// Status updates are conditional UPDATEs so the sent -> delivered -> read
// progression stays monotonic regardless of ack arrival order.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	List(ctx context.Context, convID uint, limit, offset int) ([]*models.Message, error)
	ListSince(ctx context.Context, convID uint, since time.Time) ([]*models.Message, error)
	MarkDelivered(ctx context.Context, msgID uint) (bool, error)
	MarkRead(ctx context.Context, msgID uint) (bool, error)
	MarkConversationDelivered(ctx context.Context, convID, userID uint) (int64, error)
	CreateReadReceipt(ctx context.Context, receipt *models.ReadReceipt) error
	ListReadReceipts(ctx context.Context, msgID uint) ([]models.ReadReceipt, error)
	SetStarred(ctx context.Context, msgID uint, starred bool) error
	SetPinned(ctx context.Context, msgID uint, pinned bool) error
	ListStarred(ctx context.Context, convID uint) ([]*models.Message, error)
	ListPinned(ctx context.Context, convID uint) ([]*models.Message, error)
	SoftDelete(ctx context.Context, msgID uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("Author").
		First(&msg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

func (r *messageRepository) List(ctx context.Context, convID uint, limit, offset int) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Preload("Author").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	// Reverse messages to return them in chronological order (oldest -> newest)
	// We fetched DESC to get the *latest* messages, but clients expect ASC
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListSince returns messages created at or after the given time in
// chronological order. Reconnecting clients use this for reconciliation.
func (r *messageRepository) ListSince(ctx context.Context, convID uint, since time.Time) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND created_at >= ?", convID, since).
		Preload("Author").
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// MarkDelivered advances a message from sent to delivered. Returns false when
// the row was already delivered or read, which callers treat as a no-op.
func (r *messageRepository) MarkDelivered(ctx context.Context, msgID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND delivery_status = ?", msgID, models.DeliverySent).
		Update("delivery_status", models.DeliveryDelivered)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkRead advances a message to read from any earlier status. Returns false
// when the row was already read.
func (r *messageRepository) MarkRead(ctx context.Context, msgID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND delivery_status <> ?", msgID, models.DeliveryRead).
		Update("delivery_status", models.DeliveryRead)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkConversationDelivered bulk-advances every sent message from other
// authors in one conversation. Used when a recipient comes online.
func (r *messageRepository) MarkConversationDelivered(ctx context.Context, convID, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND author_id <> ? AND delivery_status = ?", convID, userID, models.DeliverySent).
		Update("delivery_status", models.DeliveryDelivered)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) CreateReadReceipt(ctx context.Context, receipt *models.ReadReceipt) error {
	// Duplicate receipts are expected on redundant read acks.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(receipt).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) ListReadReceipts(ctx context.Context, msgID uint) ([]models.ReadReceipt, error) {
	var receipts []models.ReadReceipt
	err := r.db.WithContext(ctx).
		Where("message_id = ?", msgID).
		Order("created_at ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return receipts, nil
}

func (r *messageRepository) SetStarred(ctx context.Context, msgID uint, starred bool) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", msgID).
		Update("is_starred", starred)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Message", msgID)
	}
	return nil
}

func (r *messageRepository) SetPinned(ctx context.Context, msgID uint, pinned bool) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", msgID).
		Update("is_pinned", pinned)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Message", msgID)
	}
	return nil
}

func (r *messageRepository) ListStarred(ctx context.Context, convID uint) ([]*models.Message, error) {
	return r.listFlagged(ctx, convID, "is_starred")
}

func (r *messageRepository) ListPinned(ctx context.Context, convID uint) ([]*models.Message, error) {
	return r.listFlagged(ctx, convID, "is_pinned")
}

func (r *messageRepository) listFlagged(ctx context.Context, convID uint, column string) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND "+column+" = ?", convID, true).
		Preload("Author").
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, msgID uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, msgID)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Message", msgID)
	}
	return nil
}
