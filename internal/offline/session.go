package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"workroom/internal/notifications"

	"github.com/gorilla/websocket"
)

// EventHandler receives server-pushed events from a live session.
type EventHandler func(event notifications.Event)

// Session is a live WebSocket connection to the chat endpoint. It reads
// server events, auto-acknowledges incoming messages as delivered, and
// notifies the reconciler when the connection drops and comes back.
type Session struct {
	url     string
	token   string
	handler EventHandler
	recon   *Reconciler
	selfID  uint

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSession prepares a session against wsURL (ws://host/api/ws/chat)
// authenticated with a bearer token. selfID is the connecting user, used to
// skip delivered-acks for own messages.
func NewSession(wsURL, token string, selfID uint, handler EventHandler, recon *Reconciler) *Session {
	return &Session{url: wsURL, token: token, handler: handler, recon: recon, selfID: selfID}
}

// Connect dials the server and starts the read loop. On a successful dial the
// reconciler replays any queued messages.
func (s *Session) Connect(ctx context.Context) error {
	header := http.Header{"Authorization": {"Bearer " + s.token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial chat socket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if s.recon != nil {
		if err := s.recon.OnReconnect(ctx); err != nil {
			_ = conn.Close()
			return err
		}
	}

	go s.readLoop(ctx, conn)
	return nil
}

// Join subscribes to a conversation's events.
func (s *Session) Join(conversationID uint) error {
	return s.writeFrame(map[string]interface{}{"type": "join", "conversation_id": conversationID})
}

// Typing sends a typing indicator.
func (s *Session) Typing(conversationID uint, isTyping bool) error {
	return s.writeFrame(map[string]interface{}{
		"type": "typing", "conversation_id": conversationID, "is_typing": isTyping,
	})
}

// MarkRead reports that a message has been viewed.
func (s *Session) MarkRead(messageID uint) error {
	return s.writeFrame(map[string]interface{}{"type": "read", "message_id": messageID})
}

// Close shuts the connection down cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) writeFrame(frame map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	return s.conn.WriteJSON(frame)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event notifications.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		// Receiving a message over the live socket means it reached this
		// device; tell the server right away.
		if event.Type == notifications.EventNewMessage && event.UserID != s.selfID {
			if id := messageIDFromPayload(event.Payload); id != 0 {
				_ = s.writeFrame(map[string]interface{}{"type": "delivered", "message_id": id})
			}
		}

		if s.handler != nil {
			s.handler(event)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func messageIDFromPayload(payload interface{}) uint {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return 0
	}
	id, ok := m["id"].(float64)
	if !ok {
		return 0
	}
	return uint(id)
}
