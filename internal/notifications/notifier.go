package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes conversation events into Redis channels so every server
// instance sees them. A nil Redis client degrades to single-instance mode
// where only the local hub fans out.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishChatEvent publishes a new-message event to a conversation channel.
func (n *Notifier) PublishChatEvent(ctx context.Context, conversationID uint, event Event) error {
	return n.publish(ctx, fmt.Sprintf("chat:conv:%d", conversationID), event)
}

// PublishAckEvent publishes a delivery-progression event (delivered or read)
// to a conversation's ack channel.
func (n *Notifier) PublishAckEvent(ctx context.Context, conversationID uint, event Event) error {
	return n.publish(ctx, fmt.Sprintf("ack:conv:%d", conversationID), event)
}

// PublishTypingIndicator publishes a typing indicator to a conversation.
// Indicators carry their own expiry so clients can clear stale ones.
func (n *Notifier) PublishTypingIndicator(
	ctx context.Context, conversationID, userID uint, displayName string, isTyping bool,
) error {
	event := Event{
		Type:           EventUserTyping,
		ConversationID: conversationID,
		UserID:         userID,
		Payload: TypingPayload{
			UserID:      userID,
			DisplayName: displayName,
			IsTyping:    isTyping,
			ExpiresInMS: 5000,
		},
	}
	return n.publish(ctx, fmt.Sprintf("typing:conv:%d", conversationID), event)
}

func (n *Notifier) publish(ctx context.Context, channel string, event Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.rdb.Publish(ctx, channel, string(payload)).Err()
}

// StartChatSubscriber subscribes to the conversation patterns and calls
// onMessage for each incoming message. Subscribes to: chat:conv:*,
// typing:conv:*, ack:conv:*
func (n *Notifier) StartChatSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "chat:conv:*", "typing:conv:*", "ack:conv:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in ChatSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(conversationID uint) string {
	return "chat:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}

// AckChannel derives the Redis ack channel name for a conversation.
func AckChannel(conversationID uint) string {
	return "ack:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}

// TypingChannel derives the Redis typing channel name for a conversation.
func TypingChannel(conversationID uint) string {
	return "typing:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}
