package sink

import (
	"context"

	"dm-lab/domain/event"
)

// Connection is the per-socket outbound queue. The bus enqueues here and
// the websocket write loop drains in FIFO order, which is what gives
// clients per-connection ordering.
type Connection struct {
	Events chan event.DeliveryEvent
}

func NewConnection(bufferSize int) *Connection {
	return &Connection{Events: make(chan event.DeliveryEvent, bufferSize)}
}

// Consume is called by the fanout path. It blocks at most until the
// delivery context expires, so a slow consumer costs the bus one timeout
// and nothing more.
func (s *Connection) Consume(ctx context.Context, e event.DeliveryEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
