package models

import (
	"time"
)

// MentionKind is the target type of a mention extracted from message content.
type MentionKind string

const (
	MentionUser    MentionKind = "user"
	MentionClient  MentionKind = "client"
	MentionTask    MentionKind = "task"
	MentionFlow    MentionKind = "flow"
	MentionBoard   MentionKind = "board"
	MentionInvoice MentionKind = "invoice"
)

// Mention is a derived reference from message text to a workspace entity.
// Rows are produced by the post-processing pipeline and never edited.
type Mention struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	MessageID  uint        `gorm:"not null;index" json:"message_id"`
	Message    *Message    `gorm:"foreignKey:MessageID" json:"message,omitempty"`
	TargetType MentionKind `gorm:"not null" json:"target_type"`
	TargetID   *uint       `gorm:"index" json:"target_id,omitempty"`
	RawText    string      `gorm:"not null" json:"raw_text"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Reaction is an emoji reaction on a message. At most one row exists per
// (message, user, emoji) triple; a user may hold several distinct emoji on
// the same message.
type Reaction struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	Emoji     string    `gorm:"primaryKey;size:32" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MediaItem links an attachment to its conversation and message for the
// media-gallery query path, independent of the denormalized attachments field
// on the message row.
type MediaItem struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	MessageID      uint           `gorm:"not null;index" json:"message_id"`
	AttachmentID   string         `gorm:"index" json:"attachment_id"`
	URL            string         `gorm:"not null" json:"url"`
	FileName       string         `json:"file_name,omitempty"`
	MimeType       string         `json:"mime_type"`
	Kind           AttachmentKind `gorm:"not null;index" json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ClassifyAttachment maps a declared MIME/type hint to an AttachmentKind.
// Anything unrecognized is treated as a document.
func ClassifyAttachment(mimeType string) AttachmentKind {
	switch {
	case mimeType == "image/gif":
		return AttachmentGif
	case len(mimeType) > 6 && mimeType[:6] == "image/":
		return AttachmentImage
	case len(mimeType) > 6 && mimeType[:6] == "audio/":
		return AttachmentAudio
	case len(mimeType) > 6 && mimeType[:6] == "video/":
		return AttachmentVideo
	default:
		return AttachmentDocument
	}
}
