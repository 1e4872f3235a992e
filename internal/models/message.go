package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DeliveryStatus is the scalar lifecycle stage of a message.
// "sending" exists only client-side; a durably stored message is always at
// least "sent".
type DeliveryStatus string

const (
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

var deliveryRank = map[DeliveryStatus]int{
	DeliverySending:   0,
	DeliverySent:      1,
	DeliveryDelivered: 2,
	DeliveryRead:      3,
}

// Rank returns the ordering position of the status. Status transitions are
// monotonic: a message never moves to a status with a lower rank.
func (s DeliveryStatus) Rank() int {
	return deliveryRank[s]
}

// AttachmentKind classifies an attachment from its declared MIME/type hint.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentGif      AttachmentKind = "gif"
)

// Attachment is the descriptor returned by the external upload service. The
// core never touches file bytes, only the URL and declared type.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// AttachmentList stores the ordered attachment descriptors denormalized on the
// message row as JSON. The media_items table carries the same attachments a
// second time for the gallery query path.
type AttachmentList []Attachment

// Value implements driver.Valuer.
func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported attachment list type %T", value)
	}
}

// Message is one entry in a conversation's append-only log. Rows are
// soft-deleted; starred/pinned/delivery_status are the only mutable fields.
type Message struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ConversationID   uint           `gorm:"not null;index" json:"conversation_id"`
	Conversation     *Conversation  `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	AuthorID         uint           `gorm:"not null;index" json:"author_id"`
	Author           *User          `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content          string         `gorm:"type:text" json:"content"`
	ReplyToMessageID *uint          `gorm:"index" json:"reply_to_message_id,omitempty"`
	Attachments      AttachmentList `gorm:"type:json" json:"attachments"`
	IsStarred        bool           `gorm:"default:false;index" json:"is_starred"`
	IsPinned         bool           `gorm:"default:false;index" json:"is_pinned"`
	DeliveryStatus   DeliveryStatus `gorm:"default:'sent';index" json:"delivery_status"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// ReadReceipt records that a specific user has viewed a specific message. It
// is the per-recipient source of truth; the message's scalar delivery status
// only reflects "at least one recipient reached this state".
type ReadReceipt struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
