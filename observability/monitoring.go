// Package observability aggregates process-local counters for telemetry
// logs and the debug inspector. Counters are atomic; snapshots are cheap.
package observability

import (
	"runtime"
	"sync/atomic"
)

type Stats struct {
	ConnectionsOpened uint64 `json:"connections_opened"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	EventsDelivered   uint64 `json:"events_delivered"`
	DeliveriesDropped uint64 `json:"deliveries_dropped"`
	MessagesSent      uint64 `json:"messages_sent"`
	MessagesDeleted   uint64 `json:"messages_deleted"`
	CatchUpQueries    uint64 `json:"catchup_queries"`
	AllocMemMb        uint64 `json:"alloc_mem_mb"`
	NumGC             uint32 `json:"num_gc"`
}

type Monitoring struct {
	connectionsOpened uint64
	connectionsClosed uint64
	eventsDelivered   uint64
	deliveriesDropped uint64
	messagesSent      uint64
	messagesDeleted   uint64
	catchUpQueries    uint64
}

func NewMonitoring() *Monitoring {
	return &Monitoring{}
}

func (m *Monitoring) IncrConnectionsOpened() { atomic.AddUint64(&m.connectionsOpened, 1) }
func (m *Monitoring) IncrConnectionsClosed() { atomic.AddUint64(&m.connectionsClosed, 1) }
func (m *Monitoring) IncrEventsDelivered()   { atomic.AddUint64(&m.eventsDelivered, 1) }
func (m *Monitoring) IncrDeliveriesDropped() { atomic.AddUint64(&m.deliveriesDropped, 1) }
func (m *Monitoring) IncrMessagesSent()      { atomic.AddUint64(&m.messagesSent, 1) }
func (m *Monitoring) IncrMessagesDeleted()   { atomic.AddUint64(&m.messagesDeleted, 1) }
func (m *Monitoring) IncrCatchUpQueries()    { atomic.AddUint64(&m.catchUpQueries, 1) }

// GetLatest snapshots the counters plus the Go memory stats.
func (m *Monitoring) GetLatest() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Stats{
		ConnectionsOpened: atomic.LoadUint64(&m.connectionsOpened),
		ConnectionsClosed: atomic.LoadUint64(&m.connectionsClosed),
		EventsDelivered:   atomic.LoadUint64(&m.eventsDelivered),
		DeliveriesDropped: atomic.LoadUint64(&m.deliveriesDropped),
		MessagesSent:      atomic.LoadUint64(&m.messagesSent),
		MessagesDeleted:   atomic.LoadUint64(&m.messagesDeleted),
		CatchUpQueries:    atomic.LoadUint64(&m.catchUpQueries),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
	}
}

// StatsMap feeds the debug inspector's dashboard.
func (m *Monitoring) StatsMap() map[string]any {
	s := m.GetLatest()
	return map[string]any{
		"connections_opened": s.ConnectionsOpened,
		"connections_closed": s.ConnectionsClosed,
		"events_delivered":   s.EventsDelivered,
		"deliveries_dropped": s.DeliveriesDropped,
		"messages_sent":      s.MessagesSent,
		"messages_deleted":   s.MessagesDeleted,
		"catchup_queries":    s.CatchUpQueries,
		"alloc_mem_mb":       s.AllocMemMb,
		"num_gc":             s.NumGC,
	}
}
