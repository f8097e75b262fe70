package runtime

import (
	"context"
	"log/slog"
	"time"

	"dm-lab/contract"
	"dm-lab/domain/event"
	"dm-lab/observability"
)

// Bus resolves a logical recipient to live connections and delivers the
// event to each one independently.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. The catch-up query is the retry mechanism, not
// the bus. A connection that fails delivery is assumed to self-heal via
// its own disconnect path.
//
// Per-connection ordering holds because sinks are resolved and enqueued
// synchronously: two calls ordered at the caller enqueue in that order on
// every connection channel they share.
type Bus struct {
	registry        contract.IRegistry
	log             *slog.Logger
	monitoring      *observability.Monitoring
	deliveryTimeout time.Duration
}

func NewBus(log *slog.Logger, registry contract.IRegistry,
	monitoring *observability.Monitoring, deliveryTimeout time.Duration) *Bus {
	return &Bus{
		registry:        registry,
		log:             log,
		monitoring:      monitoring,
		deliveryTimeout: deliveryTimeout,
	}
}

// SendToUser delivers the event to every connection the user owns at call
// time. Connections registered afterwards do not receive it.
func (b *Bus) SendToUser(ctx context.Context, userID string, e event.DeliveryEvent) {
	b.deliver(ctx, b.registry.SinksFor(userID), e)
}

// Broadcast delivers to every registered connection across all users.
func (b *Bus) Broadcast(ctx context.Context, e event.DeliveryEvent) {
	b.deliver(ctx, b.registry.Snapshot(), e)
}

func (b *Bus) deliver(ctx context.Context, sinks []contract.EventSink, e event.DeliveryEvent) {
	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
		err := sink.Consume(sinkCtx, e)
		cancel()

		if err != nil {
			// Swallowed on purpose: the registry stays the source of truth
			// and the reconciliation query repairs the gap.
			b.monitoring.IncrDeliveriesDropped()
			b.log.Warn("Event delivery dropped", "event", e.Name(), "error", err)
			continue
		}
		b.monitoring.IncrEventsDelivered()
	}
}
