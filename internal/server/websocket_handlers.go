package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"workroom/internal/cache"
	"workroom/internal/middleware"
	"workroom/internal/models"
	"workroom/internal/notifications"
	"workroom/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// wsFrame is the envelope for frames a client sends up the socket.
type wsFrame struct {
	Type           string `json:"type"` // "join", "leave", "typing", "delivered", "read"
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

// WebSocketChatHandler handles WebSocket connections for real-time messaging
func (s *Server) WebSocketChatHandler() fiber.Handler {
	wsLog := observability.NewWSLogger("conversation hub")

	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			writeErrorFrame(conn, "unauthorized")
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket: Failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			writeErrorFrame(conn, err.Error())
			_ = conn.Close()
			return
		}
		wsLog.LogConnect(ctx, userID)

		client.IncomingHandler = func(c *notifications.Client, raw []byte) {
			var frame wsFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				wsLog.LogError(ctx, userID, err, "frame_parse")
				return
			}

			switch frame.Type {
			case "join":
				s.handleJoinFrame(ctx, c, userID, frame.ConversationID)

			case "leave":
				s.hub.LeaveConversation(userID, frame.ConversationID)

			case "typing":
				if !s.isMember(ctx, frame.ConversationID, userID) {
					return
				}
				if !s.allowTyping(ctx, frame.ConversationID, userID, frame.IsTyping) {
					return
				}
				if s.redis == nil {
					s.hub.BroadcastToConversation(frame.ConversationID, notifications.Event{
						Type:           notifications.EventUserTyping,
						ConversationID: frame.ConversationID,
						UserID:         userID,
						Payload: notifications.TypingPayload{
							UserID:      userID,
							DisplayName: user.DisplayName,
							IsTyping:    frame.IsTyping,
							ExpiresInMS: 5000,
						},
					})
					return
				}
				if perr := s.notifier.PublishTypingIndicator(ctx, frame.ConversationID, userID, user.DisplayName, frame.IsTyping); perr != nil {
					log.Printf("publish typing indicator error: %v", perr)
				}

			case "delivered":
				if frame.MessageID == 0 {
					return
				}
				msg, changed, aerr := s.messageService.AcknowledgeDelivered(ctx, frame.MessageID, userID)
				if aerr != nil {
					wsLog.LogError(ctx, userID, aerr, "delivered_ack")
					return
				}
				if changed {
					s.broadcastStatus(ctx, msg.ConversationID, notifications.EventMessageDelivered, notifications.StatusPayload{
						MessageID: msg.ID,
						Status:    string(models.DeliveryDelivered),
						UserID:    userID,
					})
				}

			case "read":
				if frame.MessageID == 0 {
					return
				}
				msg, changed, rerr := s.messageService.MarkRead(ctx, frame.MessageID, userID)
				if rerr != nil {
					wsLog.LogError(ctx, userID, rerr, "read_ack")
					return
				}
				if changed {
					s.broadcastStatus(ctx, msg.ConversationID, notifications.EventMessageRead, notifications.StatusPayload{
						MessageID: msg.ID,
						Status:    string(models.DeliveryRead),
						UserID:    userID,
					})
				}
			}
		}

		// Send welcome message
		welcome := notifications.Event{
			Type:    "connected",
			Payload: map[string]interface{}{"user_id": userID, "display_name": user.DisplayName},
		}
		if welcomeJSON, err := json.Marshal(welcome); err == nil {
			client.TrySend(welcomeJSON)
		}

		go client.WritePump()

		// Read pump runs in the handler goroutine (blocking)
		client.ReadPump()

		wsLog.LogDisconnect(ctx, userID, "connection closed")
	})
}

// handleJoinFrame subscribes the client to a conversation and runs the
// reconnect reconciliation: pending messages are bulk-acked as delivered so
// senders see the progression even when the recipient was offline.
func (s *Server) handleJoinFrame(ctx context.Context, c *notifications.Client, userID, convID uint) {
	if convID == 0 || !s.isMember(ctx, convID, userID) {
		return
	}
	s.hub.JoinConversation(userID, convID)

	advanced, err := s.messageService.MarkConversationDelivered(ctx, convID, userID)
	if err != nil {
		log.Printf("bulk delivered ack error (user %d, conv %d): %v", userID, convID, err)
	} else if advanced > 0 {
		s.broadcastStatus(ctx, convID, notifications.EventMessageDelivered, notifications.StatusPayload{
			Status: string(models.DeliveryDelivered),
			UserID: userID,
		})
	}

	response := notifications.Event{
		Type:           "joined",
		ConversationID: convID,
		Payload:        map[string]interface{}{"conversation_id": convID},
	}
	if responseJSON, err := json.Marshal(response); err == nil {
		c.TrySend(responseJSON)
	}
}

// broadcastStatus publishes a delivery-progression event, preferring Redis so
// every instance sees it.
func (s *Server) broadcastStatus(ctx context.Context, convID uint, eventType string, payload notifications.StatusPayload) {
	event := notifications.Event{
		Type:           eventType,
		ConversationID: convID,
		UserID:         payload.UserID,
		Payload:        payload,
	}
	if s.redis == nil {
		s.hub.BroadcastToConversation(convID, event)
		return
	}
	if perr := s.notifier.PublishAckEvent(ctx, convID, event); perr != nil {
		log.Printf("publish ack event error: %v", perr)
		s.hub.BroadcastToConversation(convID, event)
	}
}

// allowTyping gates typing relays: a per-user rate limit plus a short-lived
// dedupe marker for repeat start signals. Limiter faults fail open like the
// HTTP middleware; a broken store should not mute indicators.
func (s *Server) allowTyping(ctx context.Context, convID, userID uint, isTyping bool) bool {
	id := fmt.Sprintf("user:%d", userID)
	allowed, err := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 10, 10*time.Second)
	if err == nil && !allowed {
		return false
	}
	if isTyping && !cache.MarkTyping(ctx, convID, userID) {
		return false
	}
	return true
}

// isMember checks active conversation membership.
func (s *Server) isMember(ctx context.Context, convID, userID uint) bool {
	member, err := s.convRepo.IsMember(ctx, convID, userID)
	return err == nil && member
}

func errorFrame(message string) []byte {
	event := notifications.Event{
		Type:    notifications.EventError,
		Payload: map[string]interface{}{"message": message},
	}
	b, _ := json.Marshal(event)
	return b
}

func writeErrorFrame(conn *websocket.Conn, message string) {
	_ = conn.WriteMessage(websocket.TextMessage, errorFrame(message))
}
