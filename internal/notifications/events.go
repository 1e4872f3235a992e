// Package notifications provides real-time event delivery over WebSockets,
// fanned out per conversation and bridged across instances through Redis.
package notifications

// Event types pushed to subscribed clients.
const (
	EventNewMessage       = "new-message"
	EventUserTyping       = "user-typing"
	EventMessageDelivered = "message-delivered"
	EventMessageRead      = "message-read"
	EventMessageReaction  = "message-reaction"
	EventError            = "error"
)

// Event is the envelope for everything pushed down a conversation channel.
type Event struct {
	Type           string      `json:"type"`
	ConversationID uint        `json:"conversation_id"`
	UserID         uint        `json:"user_id,omitempty"`
	Payload        interface{} `json:"payload"`
}

// StatusPayload is the payload for delivery-progression events.
type StatusPayload struct {
	MessageID uint   `json:"message_id"`
	Status    string `json:"status"`
	UserID    uint   `json:"user_id"`
}

// ReactionPayload is the payload for reaction toggle events.
type ReactionPayload struct {
	MessageID uint   `json:"message_id"`
	UserID    uint   `json:"user_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"` // "added" or "removed"
}

// TypingPayload is the payload for typing indicator events. Indicators are
// ephemeral; clients expire them locally after ExpiresInMS.
type TypingPayload struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
	ExpiresInMS int    `json:"expires_in_ms"`
}
