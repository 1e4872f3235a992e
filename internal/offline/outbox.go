// Package offline implements the client-side sending pipeline: an outbox that
// queues messages while the connection is down, and reconnect reconciliation
// that replays them and merges the server's history back into local state.
package offline

import (
	"sync"
	"time"

	"workroom/internal/models"

	"github.com/google/uuid"
)

// DefaultMaxRetries bounds how many times a queued message is replayed before
// it is surfaced to the user as failed.
const DefaultMaxRetries = 3

// QueuedMessage is a message composed while offline. TempID identifies it
// locally until the server assigns a real ID on replay.
type QueuedMessage struct {
	TempID         string                `json:"temp_id"`
	ConversationID uint                  `json:"conversation_id"`
	Content        string                `json:"content"`
	Attachments    models.AttachmentList `json:"attachments,omitempty"`
	ReplyToID      *uint                 `json:"reply_to_message_id,omitempty"`
	QueuedAt       time.Time             `json:"queued_at"`
	Retries        int                   `json:"retries"`
}

// Outbox holds messages composed while disconnected, in send order.
// Safe for concurrent use.
type Outbox struct {
	mu         sync.Mutex
	queue      []*QueuedMessage
	maxRetries int
}

// NewOutbox creates an empty outbox. maxRetries <= 0 uses DefaultMaxRetries.
func NewOutbox(maxRetries int) *Outbox {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Outbox{maxRetries: maxRetries}
}

// Enqueue queues a message for later replay and returns its temp ID. The
// caller renders it immediately in "sending" state.
func (o *Outbox) Enqueue(conversationID uint, content string, attachments models.AttachmentList, replyTo *uint) *QueuedMessage {
	qm := &QueuedMessage{
		TempID:         uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		Attachments:    attachments,
		ReplyToID:      replyTo,
		QueuedAt:       time.Now(),
	}
	o.mu.Lock()
	o.queue = append(o.queue, qm)
	o.mu.Unlock()
	return qm
}

// Pending returns a snapshot of queued messages in original send order.
func (o *Outbox) Pending() []*QueuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*QueuedMessage, len(o.queue))
	copy(out, o.queue)
	return out
}

// Len reports how many messages are waiting for replay.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Ack removes a message after the server accepted it.
func (o *Outbox) Ack(tempID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, qm := range o.queue {
		if qm.TempID == tempID {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return
		}
	}
}

// Fail records a failed replay attempt. It returns false once the message has
// exhausted its retries, in which case it is dropped from the queue and the
// caller should surface a permanent failure.
func (o *Outbox) Fail(tempID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, qm := range o.queue {
		if qm.TempID != tempID {
			continue
		}
		qm.Retries++
		if qm.Retries >= o.maxRetries {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return false
		}
		return true
	}
	return false
}
