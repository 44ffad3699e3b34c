package runtime

import (
	"chatline/contract"
	"chatline/domain"
	"chatline/domain/event"
	"context"
	"log/slog"
	"time"
)

// Ensure *Router satisfies both the producer-facing and worker-facing
// contracts at compile time.
var (
	_ contract.Router = (*Router)(nil)
	_ contract.Worker = (*Router)(nil)
)

// DeliveryMetrics is the slice of the metrics collector the router needs.
type DeliveryMetrics interface {
	RecordDeliveries(event string, count int)
	RecordDeliveryDrop()
}

// envelope is one delivery order: an event bound for a room, optionally the
// room's last (eviction) delivery.
type envelope struct {
	room  domain.RoomKey
	evt   event.DomainEvent
	evict bool
}

// Router fans events out to the sinks subscribed to a room. Producers enqueue
// through Deliver and never touch sinks directly; the single Run loop performs
// the fan-out, which keeps delivery ordering per room auditable.
//
// Fan-out is send-or-drop: offline recipients are served by the store on
// re-read, never by queues here.
type Router struct {
	log         *slog.Logger
	registry    contract.Registry
	deliveries  chan envelope
	sinkTimeout time.Duration
	metrics     DeliveryMetrics
}

func NewRouter(log *slog.Logger, registry contract.Registry, bufferSize int,
	sinkTimeout time.Duration, metrics DeliveryMetrics) *Router {
	return &Router{
		log:         log.With("component", "Router"),
		registry:    registry,
		deliveries:  make(chan envelope, bufferSize),
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
	}
}

// Deliver enqueues an event for a room. It never blocks the caller: when the
// delivery queue is full the event is dropped and counted, matching the
// best-effort fan-out contract.
func (r *Router) Deliver(room domain.RoomKey, e event.DomainEvent) {
	select {
	case r.deliveries <- envelope{room: room, evt: e}:
	default:
		r.log.Warn("Delivery queue full, dropping event", "room", room.String(), "event", e.EventName())
		if r.metrics != nil {
			r.metrics.RecordDeliveryDrop()
		}
	}
}

// EvictRoom delivers a final event to the room and then removes the room from
// every session. Going through the queue keeps the eviction ordered after any
// deliveries already enqueued for that room.
func (r *Router) EvictRoom(room domain.RoomKey, last event.DomainEvent) {
	select {
	case r.deliveries <- envelope{room: room, evt: last, evict: true}:
	default:
		// Queue full: evict immediately rather than leave dead subscriptions.
		r.log.Warn("Delivery queue full, evicting room without notification", "room", room.String())
		r.registry.EvictRoom(room)
	}
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Context done, stopping router")
			return nil
		case env := <-r.deliveries:
			r.fanout(ctx, env)
		}
	}
}

// fanout sends the event to every live sink of the room. A room with zero
// subscribers is a silent no-op: the recipient may simply be offline.
func (r *Router) fanout(ctx context.Context, env envelope) {
	sinks := r.registry.SinksFor(env.room)
	delivered := 0
	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
		err := sink.Consume(sinkCtx, env.evt)
		cancel()
		if err != nil {
			r.log.Debug("Sink rejected event", "room", env.room.String(), "error", err)
			if r.metrics != nil {
				r.metrics.RecordDeliveryDrop()
			}
			continue
		}
		delivered++
	}
	if r.metrics != nil && delivered > 0 {
		r.metrics.RecordDeliveries(env.evt.EventName(), delivered)
	}
	if env.evict {
		r.registry.EvictRoom(env.room)
	}
}
