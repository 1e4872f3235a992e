package offline

import (
	"context"
	"sync"
	"time"

	"workroom/internal/models"
	"workroom/internal/observability"
)

// Sender delivers one queued message to the server. The HTTP client
// implements this with POST /api/conversations/:id/messages.
type Sender interface {
	Send(ctx context.Context, qm *QueuedMessage) (*models.Message, error)
}

// Fetcher retrieves conversation history newer than a cursor.
type Fetcher interface {
	Since(ctx context.Context, conversationID uint, since time.Time) ([]models.Message, error)
}

// Reconciler replays the outbox and refreshes local history after a
// reconnect. Replay happens strictly in queue order so messages keep the
// order the user composed them in.
type Reconciler struct {
	outbox  *Outbox
	sender  Sender
	fetcher Fetcher

	// settle delays reconciliation after the socket comes back, giving a
	// flapping connection a chance to stabilize before replay starts.
	settle time.Duration

	mu    sync.Mutex
	local map[uint][]models.Message
}

// NewReconciler wires an outbox to a sender and fetcher. settle <= 0 replays
// immediately.
func NewReconciler(outbox *Outbox, sender Sender, fetcher Fetcher, settle time.Duration) *Reconciler {
	return &Reconciler{
		outbox:  outbox,
		sender:  sender,
		fetcher: fetcher,
		settle:  settle,
		local:   map[uint][]models.Message{},
	}
}

// Cache seeds or replaces the locally held history for a conversation.
func (r *Reconciler) Cache(conversationID uint, msgs []models.Message) {
	r.mu.Lock()
	r.local[conversationID] = msgs
	r.mu.Unlock()
}

// Local returns the current local view of a conversation's history.
func (r *Reconciler) Local(conversationID uint) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.local[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// OnReconnect waits out the settle delay, replays every queued message in
// order, then fetches and merges history for each conversation that had
// queued traffic. Failed sends are retried on the next reconnect until the
// message exhausts its retry budget.
func (r *Reconciler) OnReconnect(ctx context.Context) error {
	if r.settle > 0 {
		select {
		case <-time.After(r.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	observability.LogAsyncOperationStart(ctx, "outbox replay", map[string]interface{}{
		"queued": r.outbox.Len(),
	})

	touched := map[uint]struct{}{}
	for _, qm := range r.outbox.Pending() {
		touched[qm.ConversationID] = struct{}{}
		if _, err := r.sender.Send(ctx, qm); err != nil {
			if !r.outbox.Fail(qm.TempID) {
				observability.LogAsyncOperationError(ctx, "outbox replay", err, map[string]interface{}{
					"temp_id": qm.TempID,
					"dropped": true,
				})
			}
			continue
		}
		r.outbox.Ack(qm.TempID)
	}

	for convID := range touched {
		if err := r.Refresh(ctx, convID); err != nil {
			return err
		}
	}

	observability.LogAsyncOperationEnd(ctx, "outbox replay", map[string]interface{}{
		"remaining": r.outbox.Len(),
	})
	return nil
}

// Refresh fetches history newer than the local cursor and merges it in.
func (r *Reconciler) Refresh(ctx context.Context, conversationID uint) error {
	since := LatestTimestamp(r.Local(conversationID))
	incoming, err := r.fetcher.Since(ctx, conversationID, since)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.local[conversationID] = Merge(r.local[conversationID], incoming)
	r.mu.Unlock()
	return nil
}
