package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix          = "user:%d"
	ConversationKeyPrefix  = "conv:%d"
	SidebarKeyPrefix       = "sidebar:%d:%d"
	WorkspaceMembersPrefix = "workspace:%d:members"
	TypingExpiryPrefix     = "typing:%d:%d"
)

const (
	UserTTL             = 5 * time.Minute
	ConversationTTL     = 10 * time.Minute
	SidebarTTL          = 30 * time.Second
	WorkspaceMembersTTL = 5 * time.Minute
	TypingTTL           = 5 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func ConversationKey(convID uint) string {
	return fmt.Sprintf(ConversationKeyPrefix, convID)
}

// SidebarKey is scoped per workspace and per user since unread counts differ by viewer.
func SidebarKey(workspaceID, userID uint) string {
	return fmt.Sprintf(SidebarKeyPrefix, workspaceID, userID)
}

func WorkspaceMembersKey(workspaceID uint) string {
	return fmt.Sprintf(WorkspaceMembersPrefix, workspaceID)
}

func TypingKey(convID, userID uint) string {
	return fmt.Sprintf(TypingExpiryPrefix, convID, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateConversation(ctx context.Context, convID uint) {
	Invalidate(ctx, ConversationKey(convID))
}

func InvalidateWorkspaceMembers(ctx context.Context, workspaceID uint) {
	Invalidate(ctx, WorkspaceMembersKey(workspaceID))
}

// MarkTyping sets a short-lived typing marker for the user in a conversation
// and reports whether it was newly set. Callers suppress repeat typing relays
// while the marker lives; without Redis every signal passes through.
func MarkTyping(ctx context.Context, convID, userID uint) bool {
	if client == nil {
		return true
	}
	ok, err := client.SetNX(ctx, TypingKey(convID, userID), 1, TypingTTL).Result()
	if err != nil {
		return true
	}
	return ok
}
