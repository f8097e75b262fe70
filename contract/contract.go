//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"dm-lab/domain"
	"dm-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives one delivery event. A connection sink enqueues it
// on the socket's outbound channel; test sinks record it.
type EventSink interface {
	Consume(ctx context.Context, e event.DeliveryEvent) error
}

// IRegistry maps logical users to their live connections.
// All mutations are atomic with respect to each other.
type IRegistry interface {
	Register(userID string, connID domain.ConnectionID, sink EventSink) (first bool, err error)
	Unregister(connID domain.ConnectionID) (userID string, last bool)
	SinksFor(userID string) []EventSink
	Snapshot() []EventSink
	AllOnlineUserIDs() []string
	IsOnline(userID string) bool
}

// IEventBus fans delivery events out to connections. Delivery is
// best-effort: failures are logged, never surfaced to the caller.
type IEventBus interface {
	SendToUser(ctx context.Context, userID string, e event.DeliveryEvent)
	Broadcast(ctx context.Context, e event.DeliveryEvent)
}

// IPresence translates registry transitions into presence semantics.
type IPresence interface {
	HandleConnect(ctx context.Context, userID string, first bool)
	HandleDisconnect(ctx context.Context, userID string, last bool, at time.Time)
	Touch(ctx context.Context, userID string, status domain.Status)
	StatusOf(userID string) domain.PresenceRecord
}
