package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dm-lab/domain"
	"dm-lab/domain/event"
	"dm-lab/mocks"
	"dm-lab/moderation"
	"dm-lab/observability"
	"dm-lab/reconcile"
	"dm-lab/repositories"
	"dm-lab/runtime"
	"dm-lab/services"
	"dm-lab/sink"
)

type fixture struct {
	registry *runtime.Registry
	tracker  *runtime.Tracker
	messages *services.MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockIBlobStore(ctrl)

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry()
	bus := runtime.NewBus(log, registry, monitoring, 100*time.Millisecond)
	tracker := runtime.NewTracker(registry, bus, 5*time.Minute)
	messages := services.NewMessageService(log, repositories.NewMessageRepository(db, log),
		bus, blobs, &moderator, monitoring, time.Second, 200)

	return &fixture{registry: registry, tracker: tracker, messages: messages}
}

// connect registers a device and runs the presence transition, returning
// the sink plus a disconnect function mirroring the socket teardown path.
func (f *fixture) connect(t *testing.T, userID string, buffer int) (*sink.Connection, func()) {
	t.Helper()
	ctx := context.Background()
	connID := domain.NewConnectionID()
	snk := sink.NewConnection(buffer)

	first, err := f.registry.Register(userID, connID, snk)
	require.NoError(t, err)
	f.tracker.HandleConnect(ctx, userID, first)

	return snk, func() {
		owner, last := f.registry.Unregister(connID)
		f.tracker.HandleDisconnect(ctx, owner, last, time.Now().UTC())
	}
}

// drainInto pumps every buffered event through the client-side merge.
func drainInto(timeline *reconcile.Timeline, snk *sink.Connection) {
	for {
		select {
		case e := <-snk.Events:
			_ = timeline.Consume(context.Background(), e)
		default:
			return
		}
	}
}

func Test_Scenario_Send_Reaches_All_Devices_And_Storage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// Given alice on two devices and bob on one
	alicePhone, _ := f.connect(t, "alice", 16)
	aliceLaptop, _ := f.connect(t, "alice", 16)
	bobPhone, _ := f.connect(t, "bob", 16)
	drainFresh(alicePhone, aliceLaptop, bobPhone)

	// When alice sends a message
	sent, err := f.messages.Send(ctx, "alice", "bob", services.Content{Text: "hello bob"})
	req.NoError(err)

	// Then every device of both parties receives exactly one copy
	for _, device := range []*sink.Connection{alicePhone, aliceLaptop, bobPhone} {
		e := waitEvent(t, device)
		delivered := e.(event.NewMessage)
		req.Equal(sent.ID, delivered.Message.ID)
	}

	// And the message is durable for catch-up
	history, err := f.messages.CatchUp(ctx, "bob", "alice", nil)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello bob", history[0].Text)
}

func Test_Scenario_Degraded_Socket_Converges_Via_CatchUp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// Given bob's client view fed by socket and polling
	bobView := reconcile.NewTimeline()
	bobSink, _ := f.connect(t, "bob", 16)

	// When alice sends while bob's socket is healthy
	first, err := f.messages.Send(ctx, "alice", "bob", services.Content{Text: "over the socket"})
	req.NoError(err)
	req.NoError(bobView.Consume(ctx, waitEvent(t, bobSink)))

	// And a second message lands while the socket copy is also pending
	second, err := f.messages.Send(ctx, "alice", "bob", services.Content{Text: "twice delivered"})
	req.NoError(err)

	// The polling fallback fetches it first
	cursor := first.CreatedAt
	missed, err := f.messages.CatchUp(ctx, "bob", "alice", &cursor)
	req.NoError(err)
	req.Equal(1, bobView.MergeAll(missed))

	// Then the late socket copy is absorbed, never duplicated
	req.NoError(bobView.Consume(ctx, waitEvent(t, bobSink)))
	view := bobView.Messages()
	req.Len(view, 2)
	req.Equal(first.ID, view[0].ID)
	req.Equal(second.ID, view[1].ID)
}

func Test_Scenario_Presence_Transitions_With_Multi_Device(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given an observer with a live socket
	observer, _ := f.connect(t, "carol", 32)
	drainFresh(observer)

	// When alice connects two devices
	_, dropPhone := f.connect(t, "alice", 16)
	_, dropLaptop := f.connect(t, "alice", 16)

	// Then exactly one online transition is observed
	req.Equal(1, countEvents(observer, "userOnline"))

	// When the first device disconnects nothing changes
	dropPhone()
	req.Equal(0, countEvents(observer, "userOffline"))
	req.Equal(domain.StatusOnline, f.tracker.StatusOf("alice").Status)

	// When the last device disconnects the user goes recently-online
	dropLaptop()
	req.Equal(1, countEvents(observer, "userOffline"))
	req.Equal(domain.StatusRecentlyOnline, f.tracker.StatusOf("alice").Status)
}

func Test_Scenario_Delete_And_Clear_Propagate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	bobView := reconcile.NewTimeline()
	bobSink, _ := f.connect(t, "bob", 32)

	one, err := f.messages.Send(ctx, "alice", "bob", services.Content{Text: "one"})
	req.NoError(err)
	_, err = f.messages.Send(ctx, "alice", "bob", services.Content{Text: "two"})
	req.NoError(err)
	waitDeliveries(t, bobSink, 2)
	drainInto(bobView, bobSink)
	req.Len(bobView.Messages(), 2)

	// When alice deletes one message
	req.NoError(f.messages.Delete(ctx, "alice", one.ID))
	waitDeliveries(t, bobSink, 1)
	drainInto(bobView, bobSink)
	req.Len(bobView.Messages(), 1)

	// When alice clears the rest
	count, err := f.messages.ClearForPair(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal(1, count)
	waitDeliveries(t, bobSink, 1)
	drainInto(bobView, bobSink)
	req.Empty(bobView.Messages())

	// And storage agrees
	history, err := f.messages.CatchUp(ctx, "bob", "alice", nil)
	req.NoError(err)
	req.Empty(history)
}

// waitEvent blocks for one delivery, failing fast instead of hanging.
func waitEvent(t *testing.T, snk *sink.Connection) event.DeliveryEvent {
	t.Helper()
	select {
	case e := <-snk.Events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivery")
		return nil
	}
}

// waitDeliveries waits until n events are buffered without consuming them.
func waitDeliveries(t *testing.T, snk *sink.Connection, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(snk.Events) < n {
		select {
		case <-deadline:
			t.Fatalf("expected %d buffered deliveries, got %d", n, len(snk.Events))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// drainFresh empties the presence chatter produced by fresh connections.
func drainFresh(sinks ...*sink.Connection) {
	// Give in-flight broadcasts a beat to land
	time.Sleep(50 * time.Millisecond)
	for _, s := range sinks {
		for draining := true; draining; {
			select {
			case <-s.Events:
			default:
				draining = false
			}
		}
	}
}

func countEvents(snk *sink.Connection, name string) int {
	// Transitions are broadcast synchronously, no settling needed
	time.Sleep(20 * time.Millisecond)
	count := 0
	for {
		select {
		case e := <-snk.Events:
			if e.Name() == name {
				count++
			}
		default:
			return count
		}
	}
}
