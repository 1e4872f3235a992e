package offline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"workroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox(t *testing.T) {
	t.Run("enqueue preserves order", func(t *testing.T) {
		ob := NewOutbox(0)
		first := ob.Enqueue(1, "first", nil, nil)
		second := ob.Enqueue(1, "second", nil, nil)

		pending := ob.Pending()
		require.Len(t, pending, 2)
		assert.Equal(t, first.TempID, pending[0].TempID)
		assert.Equal(t, second.TempID, pending[1].TempID)
		assert.NotEqual(t, first.TempID, second.TempID)
	})

	t.Run("ack removes the message", func(t *testing.T) {
		ob := NewOutbox(0)
		qm := ob.Enqueue(1, "hello", nil, nil)
		assert.Equal(t, 1, ob.Len())

		ob.Ack(qm.TempID)
		assert.Zero(t, ob.Len())

		// Acking twice is harmless.
		ob.Ack(qm.TempID)
		assert.Zero(t, ob.Len())
	})

	t.Run("retries are bounded", func(t *testing.T) {
		ob := NewOutbox(3)
		qm := ob.Enqueue(1, "flaky", nil, nil)

		assert.True(t, ob.Fail(qm.TempID))
		assert.True(t, ob.Fail(qm.TempID))
		// Third failure exhausts the budget and drops the message.
		assert.False(t, ob.Fail(qm.TempID))
		assert.Zero(t, ob.Len())
	})
}

func TestMerge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := func(id uint, offset time.Duration, status models.DeliveryStatus) models.Message {
		return models.Message{ID: id, CreatedAt: base.Add(offset), DeliveryStatus: status}
	}

	t.Run("dedupes by ID with incoming winning", func(t *testing.T) {
		local := []models.Message{
			msg(1, 0, models.DeliverySent),
			msg(2, time.Minute, models.DeliverySent),
		}
		incoming := []models.Message{
			msg(2, time.Minute, models.DeliveryRead),
			msg(3, 2*time.Minute, models.DeliverySent),
		}

		merged := Merge(local, incoming)
		require.Len(t, merged, 3)
		assert.Equal(t, uint(1), merged[0].ID)
		assert.Equal(t, uint(2), merged[1].ID)
		assert.Equal(t, models.DeliveryRead, merged[1].DeliveryStatus)
		assert.Equal(t, uint(3), merged[2].ID)
	})

	t.Run("equal timestamps break ties by ID", func(t *testing.T) {
		merged := Merge(
			[]models.Message{msg(5, 0, models.DeliverySent)},
			[]models.Message{msg(4, 0, models.DeliverySent)},
		)
		require.Len(t, merged, 2)
		assert.Equal(t, uint(4), merged[0].ID)
		assert.Equal(t, uint(5), merged[1].ID)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, Merge(nil, nil))
		merged := Merge(nil, []models.Message{msg(1, 0, models.DeliverySent)})
		assert.Len(t, merged, 1)
	})
}

func TestLatestTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, LatestTimestamp(nil).IsZero())

	msgs := []models.Message{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(time.Hour)},
		{ID: 3, CreatedAt: base.Add(time.Minute)},
	}
	assert.Equal(t, base.Add(time.Hour), LatestTimestamp(msgs))
}

// fakeServer implements Sender and Fetcher in memory.
type fakeServer struct {
	nextID   uint
	messages []models.Message
	failFor  map[string]int // temp ID -> remaining failures
}

func newFakeServer() *fakeServer {
	return &fakeServer{nextID: 1, failFor: map[string]int{}}
}

func (f *fakeServer) Send(_ context.Context, qm *QueuedMessage) (*models.Message, error) {
	if n := f.failFor[qm.TempID]; n > 0 {
		f.failFor[qm.TempID] = n - 1
		return nil, fmt.Errorf("transient send failure")
	}
	m := models.Message{
		ID:             f.nextID,
		ConversationID: qm.ConversationID,
		Content:        qm.Content,
		DeliveryStatus: models.DeliverySent,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Second),
	}
	f.nextID++
	f.messages = append(f.messages, m)
	return &m, nil
}

func (f *fakeServer) Since(_ context.Context, conversationID uint, since time.Time) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestReconcilerReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("replays in queue order and merges history", func(t *testing.T) {
		server := newFakeServer()
		ob := NewOutbox(0)
		ob.Enqueue(7, "first offline", nil, nil)
		ob.Enqueue(7, "second offline", nil, nil)

		r := NewReconciler(ob, server, server, 0)
		require.NoError(t, r.OnReconnect(ctx))

		assert.Zero(t, ob.Len())

		local := r.Local(7)
		require.Len(t, local, 2)
		assert.Equal(t, "first offline", local[0].Content)
		assert.Equal(t, "second offline", local[1].Content)
	})

	t.Run("failed sends stay queued for the next reconnect", func(t *testing.T) {
		server := newFakeServer()
		ob := NewOutbox(5)
		qm := ob.Enqueue(7, "flaky", nil, nil)
		server.failFor[qm.TempID] = 1

		r := NewReconciler(ob, server, server, 0)
		require.NoError(t, r.OnReconnect(ctx))
		assert.Equal(t, 1, ob.Len())

		// Second reconnect succeeds.
		require.NoError(t, r.OnReconnect(ctx))
		assert.Zero(t, ob.Len())
		assert.Len(t, r.Local(7), 1)
	})

	t.Run("refresh merges server-side sends", func(t *testing.T) {
		server := newFakeServer()
		ob := NewOutbox(0)
		r := NewReconciler(ob, server, server, 0)

		// Another device sent messages while this one was offline.
		_, err := server.Send(ctx, &QueuedMessage{TempID: "other-1", ConversationID: 3, Content: "from elsewhere"})
		require.NoError(t, err)

		require.NoError(t, r.Refresh(ctx, 3))
		local := r.Local(3)
		require.Len(t, local, 1)
		assert.Equal(t, "from elsewhere", local[0].Content)
	})

	t.Run("settle delay honors context cancellation", func(t *testing.T) {
		server := newFakeServer()
		r := NewReconciler(NewOutbox(0), server, server, time.Minute)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, r.OnReconnect(cancelled), context.Canceled)
	})
}
