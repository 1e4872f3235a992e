package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	"workroom/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// Hub manages WebSocket connections, conversation-centric: a client
// subscribes to the conversations it is viewing and receives only their
// events. Users may hold several connections (multi-device).
type Hub struct {
	mu sync.RWMutex

	// Map: conversationID -> set of subscribed userIDs
	rooms map[uint]map[uint]struct{}

	// Map: userID -> set of conversationIDs they're subscribed to
	userRooms map[uint]map[uint]struct{}

	// Map: userID -> set of active Clients
	userConns map[uint]map[*Client]bool
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[uint]map[uint]struct{}),
		userRooms: make(map[uint]map[uint]struct{}),
		userConns: make(map[uint]map[*Client]bool),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "conversation hub" }

// Register registers a user's websocket connection. Returns an error when the
// per-user connection limit is exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}
	if len(h.userConns[userID]) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	log.Printf("Hub: Registered user %d", userID)
	return client, nil
}

// UnregisterClient removes one connection. When it was the user's last
// connection their conversation subscriptions are dropped too.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := clients[client]; !present {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	observability.WebSocketConnectionsTotal.Dec()

	if len(clients) > 0 {
		h.mu.Unlock()
		log.Printf("Hub: Unregistered client for user %d (remaining: %d)", client.UserID, len(clients))
		return
	}
	delete(h.userConns, client.UserID)

	// Last connection gone, drop every room subscription.
	if rooms, ok := h.userRooms[client.UserID]; ok {
		for convID := range rooms {
			h.dropFromRoom(convID, client.UserID)
		}
		delete(h.userRooms, client.UserID)
	}
	h.mu.Unlock()

	log.Printf("Hub: Unregistered user %d (all connections closed)", client.UserID)
}

// dropFromRoom removes a user from a room. Caller holds the lock.
func (h *Hub) dropFromRoom(convID, userID uint) {
	if users, ok := h.rooms[convID]; ok {
		delete(users, userID)
		observability.WebSocketRoomConnections.WithLabelValues(strconv.FormatUint(uint64(convID), 10)).Set(float64(len(users)))
		if len(users) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// IsUserOnline returns true when the user has at least one active connection.
func (h *Hub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// JoinConversation subscribes a connected user to a conversation's events.
func (h *Hub) JoinConversation(userID, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.userConns[userID]; !ok {
		log.Printf("Hub: User %d not connected, cannot join conversation %d", userID, conversationID)
		return
	}

	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[uint]struct{})
	}
	h.rooms[conversationID][userID] = struct{}{}
	observability.WebSocketRoomConnections.WithLabelValues(strconv.FormatUint(uint64(conversationID), 10)).Set(float64(len(h.rooms[conversationID])))

	if h.userRooms[userID] == nil {
		h.userRooms[userID] = make(map[uint]struct{})
	}
	h.userRooms[userID][conversationID] = struct{}{}
}

// LeaveConversation unsubscribes a user from a conversation.
func (h *Hub) LeaveConversation(userID, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropFromRoom(conversationID, userID)
	if rooms, ok := h.userRooms[userID]; ok {
		delete(rooms, conversationID)
	}
}

// BroadcastToConversation sends an event to every subscribed user's clients.
func (h *Hub) BroadcastToConversation(conversationID uint, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.rooms[conversationID]
	if !ok {
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("Hub: Failed to marshal event: %v", err)
		return
	}

	for userID := range users {
		if clients, ok := h.userConns[userID]; ok {
			for client := range clients {
				client.TrySend(eventJSON)
			}
		}
	}
	observability.MessageThroughput.WithLabelValues(event.Type).Inc()
}

// SendToUser sends an event to every connection of one user, regardless of
// room subscriptions.
func (h *Hub) SendToUser(userID uint, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("Hub: Failed to marshal event: %v", err)
		return
	}
	for client := range h.userConns[userID] {
		client.TrySend(eventJSON)
	}
}

// ActiveUsers returns the userIDs currently subscribed to a conversation.
func (h *Hub) ActiveUsers(conversationID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.rooms[conversationID]
	if !ok {
		return []uint{}
	}
	result := make([]uint, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}

// StartWiring connects the hub to Redis pub/sub so events published by any
// instance reach clients connected to this one.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartChatSubscriber(ctx, func(channel, payload string) {
		var conversationID uint
		var eventType string

		if _, err := fmt.Sscanf(channel, "chat:conv:%d", &conversationID); err == nil {
			eventType = EventNewMessage
		} else if _, err := fmt.Sscanf(channel, "typing:conv:%d", &conversationID); err == nil {
			eventType = EventUserTyping
		} else if _, err := fmt.Sscanf(channel, "ack:conv:%d", &conversationID); err == nil {
			eventType = EventMessageDelivered
		} else {
			log.Printf("Hub: Invalid channel format: %s", channel)
			return
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("Hub: Failed to parse event from channel %s: %v", channel, err)
			return
		}
		if event.Type == "" {
			event.Type = eventType
		}
		event.ConversationID = conversationID

		h.BroadcastToConversation(conversationID, event)
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.rooms = make(map[uint]map[uint]struct{})
	h.userRooms = make(map[uint]map[uint]struct{})
	h.userConns = make(map[uint]map[*Client]bool)

	return nil
}
