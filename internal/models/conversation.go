package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatType classifies a conversation. The type is fixed at creation and is
// never reclassified afterwards.
type ChatType string

const (
	ChatTypeFlow           ChatType = "flow"
	ChatTypeClientInternal ChatType = "client_internal"
	ChatTypeClientExternal ChatType = "client_external"
	ChatTypeDirect         ChatType = "direct"
)

// Valid reports whether t is one of the known chat types.
func (t ChatType) Valid() bool {
	switch t {
	case ChatTypeFlow, ChatTypeClientInternal, ChatTypeClientExternal, ChatTypeDirect:
		return true
	}
	return false
}

// Member roles within a group conversation.
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// Conversation is a typed, workspace-scoped channel containing an ordered
// message log. Groups are direct conversations with IsGroup set and group
// metadata filled in. For direct (non-group) conversations UserLowID/UserHighID
// hold the participant pair in canonical order so one conversation exists per
// unordered pair.
type Conversation struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID     uint           `gorm:"not null;index" json:"workspace_id"`
	ChatType        ChatType       `gorm:"not null;index" json:"chat_type"`
	ClientSpaceID   *uint          `gorm:"index" json:"client_space_id,omitempty"`
	FlowID          *uint          `gorm:"index" json:"flow_id,omitempty"`
	UserLowID       *uint          `gorm:"index" json:"-"`
	UserHighID      *uint          `gorm:"index" json:"-"`
	IsGroup         bool           `gorm:"default:false" json:"is_group"`
	Name            string         `json:"name"` // group metadata
	Description     string         `json:"description,omitempty"`
	Avatar          string         `json:"avatar,omitempty"`
	CreatedByUserID uint           `json:"created_by_user_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Members     []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
	Messages    []Message            `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	UnreadCount int                  `gorm:"-" json:"unread_count"`
}

// ConversationMember tracks membership in a conversation. Membership is never
// hard-deleted; leaving a group sets LeftAt.
type ConversationMember struct {
	ConversationID uint       `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey" json:"user_id"`
	Role           string     `gorm:"default:'member'" json:"role"`
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	User           *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// NotificationSetting holds per-member notification preferences for a
// conversation. A default row is materialized when membership is created.
type NotificationSetting struct {
	ConversationID uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	Muted          bool      `gorm:"default:false" json:"muted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
