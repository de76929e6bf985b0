package event

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"
)

// DeliveryHandler counts per-connection deliveries and drops.
// It is triggered by the router worker after each fan-out pass.
// Useful for spotting connections that keep losing events before the
// transport layer notices they are gone.
type DeliveryHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter}
}

func (h *DeliveryHandler) Handle(event Event) {
	switch event.Type {
	case DeliveredType:
		if _, ok := event.Payload.(Delivered); !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(DeliveredType)
	case DroppedType:
		payload, ok := event.Payload.(Dropped)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(DroppedType)
		h.log.Warn(fmt.Sprintf("Event %s dropped for connection %s: %s",
			payload.Kind, payload.ConnectionID, payload.Reason))
	}
}
