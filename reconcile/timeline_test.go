package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dm-lab/domain"
	"dm-lab/domain/event"
)

func message(sender, receiver, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  at,
	}
}

func TestTimeline_Merge_Keeps_Ascending_Order(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now().UTC()

	// When messages arrive out of order
	req.True(timeline.Merge(message("alice", "bob", "second", now.Add(time.Minute))))
	req.True(timeline.Merge(message("bob", "alice", "first", now)))
	req.True(timeline.Merge(message("alice", "bob", "third", now.Add(2*time.Minute))))

	// Then the view is sorted by createdAt
	messages := timeline.Messages()
	req.Len(messages, 3)
	req.Equal("first", messages[0].Text)
	req.Equal("second", messages[1].Text)
	req.Equal("third", messages[2].Text)
}

func TestTimeline_Merge_Same_ID_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	msg := message("alice", "bob", "hello", time.Now().UTC())

	// When the same message arrives over the socket and via catch-up
	req.True(timeline.Merge(msg))
	req.False(timeline.Merge(msg))

	req.Len(timeline.Messages(), 1)
}

func TestTimeline_Merge_Near_Duplicate_Without_ID_Match(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now().UTC()

	// Given two copies of the same text from the same sender, different
	// IDs, timestamps one second apart
	copy1 := message("alice", "bob", "hello", now)
	copy2 := message("alice", "bob", "hello", now.Add(time.Second))

	req.True(timeline.Merge(copy1))

	// Then the near-duplicate is absorbed
	req.False(timeline.Merge(copy2))
	req.Len(timeline.Messages(), 1)
}

func TestTimeline_Merge_Same_Text_Outside_Window_Is_Kept(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now().UTC()

	// Sending "ok" twice three seconds apart is two real messages
	req.True(timeline.Merge(message("alice", "bob", "ok", now)))
	req.True(timeline.Merge(message("alice", "bob", "ok", now.Add(3*time.Second))))

	req.Len(timeline.Messages(), 2)
}

func TestTimeline_Merge_Same_Text_Different_Sender_Is_Kept(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now().UTC()

	req.True(timeline.Merge(message("alice", "bob", "hello", now)))
	req.True(timeline.Merge(message("bob", "alice", "hello", now.Add(time.Millisecond))))

	req.Len(timeline.Messages(), 2)
}

func TestTimeline_MergeAll_Reports_New_Count(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now().UTC()

	known := message("alice", "bob", "known", now)
	req.True(timeline.Merge(known))

	// When a catch-up batch overlaps with the live stream
	added := timeline.MergeAll([]domain.Message{
		known,
		message("alice", "bob", "fresh", now.Add(time.Minute)),
	})

	req.Equal(1, added)
	req.Len(timeline.Messages(), 2)
}

func TestTimeline_Consume_Delete_And_Clear(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	timeline := NewTimeline()
	now := time.Now().UTC()

	fromAlice1 := message("alice", "bob", "one", now)
	fromAlice2 := message("alice", "bob", "two", now.Add(time.Minute))
	fromBob := message("bob", "alice", "three", now.Add(2*time.Minute))

	req.NoError(timeline.Consume(ctx, event.NewMessage{Message: fromAlice1}))
	req.NoError(timeline.Consume(ctx, event.NewMessage{Message: fromAlice2}))
	req.NoError(timeline.Consume(ctx, event.NewMessage{Message: fromBob}))

	// When one message is deleted
	req.NoError(timeline.Consume(ctx, event.MessageDeleted{
		MessageID: fromAlice1.ID, SenderID: "alice", ReceiverID: "bob",
	}))
	req.Len(timeline.Messages(), 2)

	// When alice clears her side of the conversation
	req.NoError(timeline.Consume(ctx, event.MessagesCleared{
		SenderID: "alice", ReceiverID: "bob", DeletedCount: 1,
	}))

	// Then only bob's message survives
	messages := timeline.Messages()
	req.Len(messages, 1)
	req.Equal("three", messages[0].Text)
}

func TestTimeline_Latest_Is_The_CatchUp_Cursor(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	// An empty timeline has no cursor
	_, ok := timeline.Latest()
	req.False(ok)

	now := time.Now().UTC()
	timeline.Merge(message("alice", "bob", "old", now))
	timeline.Merge(message("alice", "bob", "new", now.Add(time.Minute)))

	latest, ok := timeline.Latest()
	req.True(ok)
	req.Equal(now.Add(time.Minute), latest)
}
