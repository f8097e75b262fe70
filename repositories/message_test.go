package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"dm-lab/domain"
	"dm-lab/errors"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessageRepo(t *testing.T) MessageRepository {
	t.Helper()
	return NewMessageRepository(newTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
}

func storedMessage(sender, receiver, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  at,
	}
}

func TestMessageRepository_Both_Directions_Share_One_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)
	now := time.Now().UTC()

	// Given messages flowing both ways
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "hi bob", now)))
	req.NoError(repo.StoreMessage(ctx, storedMessage("bob", "alice", "hi alice", now.Add(time.Second))))
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "how are you", now.Add(2*time.Second))))

	// When either side queries the conversation
	fromAlice, err := repo.GetBetween(ctx, "alice", "bob", nil, 0)
	req.NoError(err)
	fromBob, err := repo.GetBetween(ctx, "bob", "alice", nil, 0)
	req.NoError(err)

	// Then both see the same interleaved ascending history
	req.Len(fromAlice, 3)
	req.Equal(fromAlice, fromBob)
	req.Equal("hi bob", fromAlice[0].Text)
	req.Equal("hi alice", fromAlice[1].Text)
	req.Equal("how are you", fromAlice[2].Text)
}

func TestMessageRepository_Conversations_Are_Isolated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)
	now := time.Now().UTC()

	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "for bob", now)))
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "carol", "for carol", now)))

	messages, err := repo.GetBetween(ctx, "alice", "bob", nil, 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for bob", messages[0].Text)
}

func TestMessageRepository_Since_Is_Strictly_Newer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)
	now := time.Now().UTC().Truncate(time.Nanosecond)

	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "old", now.Add(-time.Minute))))
	cursor := storedMessage("alice", "bob", "cursor", now)
	req.NoError(repo.StoreMessage(ctx, cursor))
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "new", now.Add(time.Minute))))

	// When querying with the cursor timestamp
	messages, err := repo.GetBetween(ctx, "alice", "bob", &cursor.CreatedAt, 0)
	req.NoError(err)

	// Then the message at the cursor itself is excluded
	req.Len(messages, 1)
	req.Equal("new", messages[0].Text)
}

func TestMessageRepository_Limit_Caps_The_Scan(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		req.NoError(repo.StoreMessage(ctx,
			storedMessage("alice", "bob", "msg", now.Add(time.Duration(i)*time.Second))))
	}

	messages, err := repo.GetBetween(ctx, "alice", "bob", nil, 3)
	req.NoError(err)
	req.Len(messages, 3)
}

func TestMessageRepository_GetByID_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)

	msg := storedMessage("alice", "bob", "delete me", time.Now().UTC())
	req.NoError(repo.StoreMessage(ctx, msg))

	// The secondary index resolves the message
	loaded, err := repo.GetByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, loaded.ID)
	req.Equal("delete me", loaded.Text)

	// When the message is deleted
	req.NoError(repo.DeleteByID(ctx, msg.ID))

	// Then both the document and the index are gone
	_, err = repo.GetByID(ctx, msg.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	messages, err := repo.GetBetween(ctx, "alice", "bob", nil, 0)
	req.NoError(err)
	req.Empty(messages)
}

func TestMessageRepository_DeleteByID_Unknown(t *testing.T) {
	req := require.New(t)
	repo := newMessageRepo(t)

	err := repo.DeleteByID(context.Background(), uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageRepository_Clear_Is_Asymmetric(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := newMessageRepo(t)
	now := time.Now().UTC()

	// Given a two-way conversation
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "from alice 1", now)))
	req.NoError(repo.StoreMessage(ctx, storedMessage("bob", "alice", "from bob", now.Add(time.Second))))
	req.NoError(repo.StoreMessage(ctx, storedMessage("alice", "bob", "from alice 2", now.Add(2*time.Second))))

	// When alice clears what she sent to bob
	count, err := repo.DeleteBySenderReceiver(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal(2, count)

	// Then bob's messages to alice survive
	messages, err := repo.GetBetween(ctx, "alice", "bob", nil, 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("from bob", messages[0].Text)
}

func TestMessageRepository_Canceled_Context(t *testing.T) {
	req := require.New(t)
	repo := newMessageRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.StoreMessage(ctx, storedMessage("alice", "bob", "late", time.Now().UTC()))
	req.ErrorIs(err, context.Canceled)
}
