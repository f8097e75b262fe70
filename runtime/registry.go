// Package runtime handles connection registration, presence derivation and
// event propagation. It orchestrates the system without containing business
// logic or domain rules.
package runtime

import (
	"sync"
	"time"

	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
)

type registration struct {
	userID      string
	sink        contract.EventSink
	connectedAt time.Time
}

// Registry is the bidirectional map between logical users and live
// connections. One user may own several connections (multi-device).
// Registry is the single mutable shared resource of the core: lookups
// and mutations are in-memory only and never wait on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]registration
	users map[string]map[domain.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnectionID]registration),
		users: make(map[string]map[domain.ConnectionID]struct{}),
	}
}

// Register adds a live connection for a user. It is idempotent for an
// already-known connection ID. The returned flag reports whether this
// connection flipped the user offline -> online, so the caller can decide
// whether a presence transition must be emitted.
func (r *Registry) Register(userID string, connID domain.ConnectionID, sink contract.EventSink) (bool, error) {
	if userID == "" {
		return false, errors.ErrInvalidHandshake
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.conns[connID]; known {
		return false, nil
	}

	first := len(r.users[userID]) == 0

	r.conns[connID] = registration{
		userID:      userID,
		sink:        sink,
		connectedAt: time.Now().UTC(),
	}
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(map[domain.ConnectionID]struct{})
	}
	r.users[userID][connID] = struct{}{}

	return first, nil
}

// Unregister removes a connection regardless of which user owned it.
// Unknown IDs are a no-op so a double disconnect is harmless. The returned
// flag reports whether this was the user's last connection.
func (r *Registry) Unregister(connID domain.ConnectionID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	members, ok := r.users[reg.userID]
	if ok {
		delete(members, connID)
		// No empty sets left behind, they would leak over time
		if len(members) == 0 {
			delete(r.users, reg.userID)
			return reg.userID, true
		}
	}
	return reg.userID, false
}

// SinksFor returns the sinks of every live connection the user owns,
// possibly empty. The slice is a snapshot taken under the read lock.
func (r *Registry) SinksFor(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.users[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for connID := range members {
		if reg, exists := r.conns[connID]; exists {
			sinks = append(sinks, reg.sink)
		}
	}
	return sinks
}

// Snapshot returns the sinks of every registered connection across all
// users, for roster-wide broadcasts.
func (r *Registry) Snapshot() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.conns))
	for _, reg := range r.conns {
		sinks = append(sinks, reg.sink)
	}
	return sinks
}

// AllOnlineUserIDs returns the users owning at least one live connection.
func (r *Registry) AllOnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for userID := range r.users {
		ids = append(ids, userID)
	}
	return ids
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionCount reports the number of live connections, for telemetry.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
