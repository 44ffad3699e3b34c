//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chatline/domain"
	"chatline/domain/event"
	"context"
	"reflect"
)

// EventSink is one live connection's inbound edge. Consume must not block the
// caller beyond its buffer; a full sink drops rather than stalls fan-out.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Registry tracks sessions and their room subscriptions. All operations are
// idempotent: joining a joined room or unregistering twice is a no-op.
type Registry interface {
	Register(connID, userID string, sink EventSink) *domain.Session
	Join(connID string, room domain.RoomKey) error
	Leave(connID string, room domain.RoomKey)
	Unregister(connID string)
	MembersOf(room domain.RoomKey) []string
	SinksFor(room domain.RoomKey) []EventSink
	EvictRoom(room domain.RoomKey)
}

// Router decouples dispatch from delivery: producers enqueue, the router
// worker fans out. Deliver never blocks; EvictRoom delivers a final event to
// the room and then removes it from every session.
type Router interface {
	Deliver(room domain.RoomKey, e event.DomainEvent)
	EvictRoom(room domain.RoomKey, last event.DomainEvent)
}

// Worker doesn't protect itself; the supervisor restarts it after a panic.
type Worker interface {
	Run(ctx context.Context) error
}

type Supervisor interface {
	Add(worker ...Worker) Supervisor
	Run(ctx context.Context)
	Stop()
}

// WorkerName uses reflection to name a worker for supervision logs, avoiding
// a manual naming method on the Worker interface.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
