package runtime

import (
	"context"
	"sync"
	"time"

	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/domain/event"
)

// Tracker owns lastSeenAt and turns registry transitions into presence
// events. It emits on status changes only, so event volume stays
// proportional to transitions, not to connection count.
//
// Presence is process-lifetime state. A restart resets every user to
// unknown, which the polling fallback absorbs.
type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	window   time.Duration
	registry contract.IRegistry
	bus      contract.IEventBus
	now      func() time.Time
}

func NewTracker(registry contract.IRegistry, bus contract.IEventBus, window time.Duration) *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
		window:   window,
		registry: registry,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleConnect is called after every successful Register. Only the
// connection that flipped the user online produces a transition event;
// the roster snapshot goes out to everyone either way.
func (t *Tracker) HandleConnect(ctx context.Context, userID string, first bool) {
	if first {
		t.bus.Broadcast(ctx, event.UserOnline{UserID: userID})
	}
	t.bus.Broadcast(ctx, event.OnlineRoster{UserIDs: t.registry.AllOnlineUserIDs()})
}

// HandleDisconnect is called after every Unregister. A user with other
// live devices stays online and produces no transition.
func (t *Tracker) HandleDisconnect(ctx context.Context, userID string, last bool, at time.Time) {
	if last {
		t.mu.Lock()
		t.lastSeen[userID] = at
		t.mu.Unlock()

		t.bus.Broadcast(ctx, event.UserOffline{UserID: userID, LastSeenAt: at})
	}
	t.bus.Broadcast(ctx, event.OnlineRoster{UserIDs: t.registry.AllOnlineUserIDs()})
}

// Touch records explicit client activity ("updatePresence") and relays
// the self-declared status to everyone.
func (t *Tracker) Touch(ctx context.Context, userID string, status domain.Status) {
	now := t.now()
	t.mu.Lock()
	t.lastSeen[userID] = now
	t.mu.Unlock()

	t.bus.Broadcast(ctx, event.PresenceUpdated{UserID: userID, Status: status, LastSeenAt: now})
}

// StatusOf classifies a user at read time. Online wins over any recency
// window; recently-online is computed, never stored as its own state.
func (t *Tracker) StatusOf(userID string) domain.PresenceRecord {
	t.mu.Lock()
	seen := t.lastSeen[userID]
	t.mu.Unlock()

	if t.registry.IsOnline(userID) {
		return domain.PresenceRecord{UserID: userID, Status: domain.StatusOnline, LastSeenAt: seen}
	}
	return domain.PresenceRecord{
		UserID:     userID,
		Status:     domain.Classify(seen, t.window, t.now()),
		LastSeenAt: seen,
	}
}

// Compact drops lastSeen entries that aged past the recency window.
// Their classification is offline either way, keeping them only grows
// the map. Online users are left untouched.
func (t *Tracker) Compact() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for userID, seen := range t.lastSeen {
		if t.registry.IsOnline(userID) {
			continue
		}
		if now.Sub(seen) > t.window {
			delete(t.lastSeen, userID)
			removed++
		}
	}
	return removed
}
