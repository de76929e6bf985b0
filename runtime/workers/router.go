package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Ensure *RouterWorker implements the contract.Worker interface at compile
// time. This prevents "type mismatch" errors from appearing late in other
// packages and acts as a static assertion of our architectural rules.
var _ contract.Worker = (*RouterWorker)(nil)

// RouterWorker delivers domain events to every live connection of every
// member of the target conversation. A single goroutine drains the event
// channel, so events for a conversation reach each connection in the order
// the router received them; per-connection delivery itself is an
// independent, best-effort enqueue.
type RouterWorker struct {
	log        *slog.Logger
	registry   contract.IConnectionRegistry
	membership contract.IMembership
	events     chan event.DomainEvent
	telemetry  chan event.Event
}

func NewRouterWorker(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	membership contract.IMembership,
	events chan event.DomainEvent,
	telemetry chan event.Event) *RouterWorker {
	return &RouterWorker{
		log:        log,
		registry:   registry,
		membership: membership,
		events:     events,
		telemetry:  telemetry,
	}
}

func (w *RouterWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case e, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Route(e)
		}
	}
}

// Route fans one event out. Member and connection sets are read as
// snapshots before any delivery, so no registry lock is held while
// dispatching to a transport. TypingStarted and TypingStopped skip the exact
// originating connection to avoid self-echo; the sender's other connections
// receive them like everyone else.
func (w *RouterWorker) Route(e event.DomainEvent) {
	members := w.membership.MembersOf(e.Conversation())
	if len(members) == 0 {
		w.log.Debug(fmt.Sprintf("No recipients for %s event in conversation %s", e.Kind(), e.Conversation()))
		return
	}

	excluded := event.ExcludedConnection(e)
	for _, member := range members {
		for _, conn := range w.registry.ConnectionsFor(member) {
			if conn.ID() == excluded {
				continue
			}
			if err := conn.Send(e); err != nil {
				// Equivalent to the connection not existing: the transport
				// layer unregisters it concurrently. Delivery to the
				// remaining connections continues.
				w.log.Warn("Delivery failed",
					"kind", e.Kind(),
					"conversation_id", e.Conversation(),
					"connection_id", conn.ID(),
					"error", err)
				w.report(event.Event{
					Type:      event.DroppedType,
					CreatedAt: time.Now().UTC(),
					Payload: event.Dropped{
						Kind:         e.Kind(),
						ConnectionID: conn.ID(),
						Reason:       err.Error(),
					},
				})
				continue
			}
			w.report(event.Event{
				Type:      event.DeliveredType,
				CreatedAt: time.Now().UTC(),
				Payload: event.Delivered{
					Kind:           e.Kind(),
					ConversationID: e.Conversation(),
					ConnectionID:   conn.ID(),
				},
			})
		}
	}
}

// report never blocks; telemetry is sampled, losing a probe is fine.
func (w *RouterWorker) report(e event.Event) {
	if w.telemetry == nil {
		return
	}
	select {
	case w.telemetry <- e:
	default:
	}
}
